package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/evaluate"
	"github.com/jackzampolin/promptlab/internal/fields"
)

// RunFieldsEndpoint handles GET /api/runs/{id}/fields.
type RunFieldsEndpoint struct{}

func (e *RunFieldsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}/fields", e.handler
}

func (e *RunFieldsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Compare a run's fields
//	@Description	Discovered fields of the run side by side with the book input's correct fields.
//	@Description	Rows are ordered mismatches first, then missing, extra, matches and empty.
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	evaluate.RunComparison
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/runs/{id}/fields [get]
func (e *RunFieldsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := evaluatorFrom(w, r)
	if svc == nil {
		return
	}
	cmp, err := svc.CompareRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (e *RunFieldsEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields <run-id>",
		Short: "Compare a run's discovered fields with the correct fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp evaluate.RunComparison
			if err := client.Get(cmd.Context(), "/api/runs/"+url.PathEscape(args[0])+"/fields", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(runsGroup, cmd)
}

// MarkCorrectResponse reports whether a discovered value was copied.
type MarkCorrectResponse struct {
	RunID   string `json:"run_id"`
	Key     string `json:"key"`
	Applied bool   `json:"applied"`
}

// MarkCorrectEndpoint handles POST /api/runs/{id}/fields/{key}/correct.
type MarkCorrectEndpoint struct{}

func (e *MarkCorrectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/runs/{id}/fields/{key}/correct", e.handler
}

func (e *MarkCorrectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Mark a discovered value correct
//	@Description	Copies the run's discovered value for the field into its book input's correct fields,
//	@Description	creating the correct set when the input has none. A run without discovered fields
//	@Description	is a no-op reported as applied=false.
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Param			key	path		string	true	"Field key"
//	@Success		200	{object}	MarkCorrectResponse
//	@Failure		400	{object}	ErrorResponse
//	@Router			/api/runs/{id}/fields/{key}/correct [post]
func (e *MarkCorrectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := evaluatorFrom(w, r)
	if svc == nil {
		return
	}
	runID, key := r.PathValue("id"), r.PathValue("key")
	applied, err := svc.MarkCorrect(r.Context(), runID, key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkCorrectResponse{RunID: runID, Key: key, Applied: applied})
}

func (e *MarkCorrectEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark-correct <run-id> <key>",
		Short: "Copy a run's discovered value into the correct fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp MarkCorrectResponse
			path := "/api/runs/" + url.PathEscape(args[0]) + "/fields/" + url.PathEscape(args[1]) + "/correct"
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(runsGroup, cmd)
}

// GetFieldSetEndpoint handles GET /api/fieldsets/{id}.
type GetFieldSetEndpoint struct{}

func (e *GetFieldSetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/fieldsets/{id}", e.handler
}

func (e *GetFieldSetEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a field set
//	@Description	All fields of a stored set. Unknown fields are null, empty fields are "".
//	@Tags			fields
//	@Produce		json
//	@Param			id	path		string	true	"Field set ID"
//	@Success		200	{object}	fields.Set
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/fieldsets/{id} [get]
func (e *GetFieldSetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	set, err := st.GetFieldSet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (e *GetFieldSetEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a field set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp fields.Set
			if err := client.Get(cmd.Context(), "/api/fieldsets/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped("fieldsets", cmd)
}
