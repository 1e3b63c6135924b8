package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/store"
)

const inputsGroup = "inputs"

// CreateInputRequest is the request body for creating a book input.
type CreateInputRequest struct {
	Label             string `json:"label"`
	OCRMarkdown       string `json:"ocr_markdown"`
	ReferenceMarkdown string `json:"reference_markdown,omitempty"`
}

// UpdateInputRequest is the request body for editing a book input.
// Nil fields are left unchanged.
type UpdateInputRequest struct {
	Label             *string `json:"label,omitempty"`
	OCRMarkdown       *string `json:"ocr_markdown,omitempty"`
	ReferenceMarkdown *string `json:"reference_markdown,omitempty"`
}

// InputResponse is a book input with its correct fields, when linked.
type InputResponse struct {
	store.BookInput `yaml:",inline"`
	CorrectFields *fields.Set `json:"correct_fields,omitempty"`
}

// ListInputsResponse is the response for listing book inputs.
type ListInputsResponse struct {
	Inputs []store.BookInput `json:"inputs"`
}

// CreateInputEndpoint handles POST /api/inputs.
type CreateInputEndpoint struct{}

func (e *CreateInputEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/inputs", e.handler
}

func (e *CreateInputEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create a book input
//	@Description	Store OCR markdown (and optional reference markdown) to run prompts against
//	@Tags			inputs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateInputRequest	true	"Book input"
//	@Success		201		{object}	store.BookInput
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/inputs [post]
func (e *CreateInputEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateInputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st := storeFrom(w, r)
	if st == nil {
		return
	}

	in := &store.BookInput{
		Label:             req.Label,
		OCRMarkdown:       req.OCRMarkdown,
		ReferenceMarkdown: req.ReferenceMarkdown,
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := st.CreateBookInput(r.Context(), in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (e *CreateInputEndpoint) Command(getServerURL func() string) *cobra.Command {
	var label, ocrFile, refFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a book input from an OCR markdown file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if label == "" || ocrFile == "" {
				return fmt.Errorf("--label and --file are required")
			}
			ocr, err := os.ReadFile(ocrFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", ocrFile, err)
			}
			req := CreateInputRequest{Label: label, OCRMarkdown: string(ocr)}
			if refFile != "" {
				ref, err := os.ReadFile(refFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", refFile, err)
				}
				req.ReferenceMarkdown = string(ref)
			}

			client := api.NewClient(getServerURL())
			var resp store.BookInput
			if err := client.Post(cmd.Context(), "/api/inputs", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Book input label (required)")
	cmd.Flags().StringVarP(&ocrFile, "file", "f", "", "OCR markdown file (required)")
	cmd.Flags().StringVar(&refFile, "reference", "", "Reference markdown file")
	return api.Grouped(inputsGroup, cmd)
}

// ListInputsEndpoint handles GET /api/inputs.
type ListInputsEndpoint struct{}

func (e *ListInputsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/inputs", e.handler
}

func (e *ListInputsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List book inputs
//	@Description	All book inputs, newest first
//	@Tags			inputs
//	@Produce		json
//	@Success		200	{object}	ListInputsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/inputs [get]
func (e *ListInputsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	inputs, err := st.ListBookInputs(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListInputsResponse{Inputs: inputs})
}

func (e *ListInputsEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List book inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListInputsResponse
			if err := client.Get(cmd.Context(), "/api/inputs", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(inputsGroup, cmd)
}

// GetInputEndpoint handles GET /api/inputs/{id}.
type GetInputEndpoint struct{}

func (e *GetInputEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/inputs/{id}", e.handler
}

func (e *GetInputEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a book input
//	@Description	A book input with its correct fields
//	@Tags			inputs
//	@Produce		json
//	@Param			id	path		string	true	"Book input ID"
//	@Success		200	{object}	InputResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/inputs/{id} [get]
func (e *GetInputEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	in, err := st.GetBookInput(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := InputResponse{BookInput: *in}
	if in.CorrectFieldsID != "" {
		set, err := st.GetFieldSet(r.Context(), in.CorrectFieldsID)
		if err != nil {
			writeServiceError(w, r, fmt.Errorf("load correct fields: %w", err))
			return
		}
		resp.CorrectFields = &set
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *GetInputEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a book input and its correct fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp InputResponse
			if err := client.Get(cmd.Context(), "/api/inputs/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(inputsGroup, cmd)
}

// UpdateInputEndpoint handles PUT /api/inputs/{id}.
type UpdateInputEndpoint struct{}

func (e *UpdateInputEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/inputs/{id}", e.handler
}

func (e *UpdateInputEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update a book input
//	@Description	Edit the label or markdown of a book input
//	@Tags			inputs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Book input ID"
//	@Param			request	body		UpdateInputRequest	true	"Fields to change"
//	@Success		200		{object}	store.BookInput
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/inputs/{id} [put]
func (e *UpdateInputEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req UpdateInputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	in, err := st.GetBookInput(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Label != nil {
		in.Label = *req.Label
	}
	if req.OCRMarkdown != nil {
		in.OCRMarkdown = *req.OCRMarkdown
	}
	if req.ReferenceMarkdown != nil {
		in.ReferenceMarkdown = *req.ReferenceMarkdown
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := st.UpdateBookInput(r.Context(), in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (e *UpdateInputEndpoint) Command(getServerURL func() string) *cobra.Command {
	var label, ocrFile, refFile string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a book input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req UpdateInputRequest
			if cmd.Flags().Changed("label") {
				req.Label = &label
			}
			for _, f := range []struct {
				path string
				dst  **string
			}{{ocrFile, &req.OCRMarkdown}, {refFile, &req.ReferenceMarkdown}} {
				if f.path == "" {
					continue
				}
				data, err := os.ReadFile(f.path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", f.path, err)
				}
				s := string(data)
				*f.dst = &s
			}

			client := api.NewClient(getServerURL())
			var resp store.BookInput
			if err := client.Put(cmd.Context(), "/api/inputs/"+url.PathEscape(args[0]), req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "New label")
	cmd.Flags().StringVarP(&ocrFile, "file", "f", "", "Replacement OCR markdown file")
	cmd.Flags().StringVar(&refFile, "reference", "", "Replacement reference markdown file")
	return api.Grouped(inputsGroup, cmd)
}

// SetFieldRequest is the request body for a manual correct-field edit.
// "empty" records that the field is absent from the book; blank clears it.
type SetFieldRequest struct {
	Value string `json:"value"`
}

// SetFieldResponse returns the correct set after the edit.
type SetFieldResponse struct {
	BookInputID   string       `json:"book_input_id"`
	Key           string       `json:"key"`
	Value         fields.Value `json:"value"`
	CorrectFields fields.Set   `json:"correct_fields"`
}

// SetFieldEndpoint handles PUT /api/inputs/{id}/fields/{key}.
type SetFieldEndpoint struct{}

func (e *SetFieldEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/inputs/{id}/fields/{key}", e.handler
}

func (e *SetFieldEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Set a correct field
//	@Description	Manually edit one field of a book input's correct set, creating the set if absent
//	@Tags			inputs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Book input ID"
//	@Param			key		path		string			true	"Field key (e.g. title_l1)"
//	@Param			request	body		SetFieldRequest	true	"Value"
//	@Success		200		{object}	SetFieldResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/inputs/{id}/fields/{key} [put]
func (e *SetFieldEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SetFieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc := evaluatorFrom(w, r)
	if svc == nil {
		return
	}
	id, key := r.PathValue("id"), r.PathValue("key")
	set, err := svc.SetCorrectField(r.Context(), id, key, req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SetFieldResponse{
		BookInputID:   id,
		Key:           key,
		Value:         set.Get(key),
		CorrectFields: set,
	})
}

func (e *SetFieldEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-field <input-id> <key> [value]",
		Short: "Set a correct field (\"empty\" marks it absent, no value clears it)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req SetFieldRequest
			if len(args) == 3 {
				req.Value = args[2]
			}
			path := "/api/inputs/" + url.PathEscape(args[0]) + "/fields/" + url.PathEscape(args[1])
			client := api.NewClient(getServerURL())
			var resp SetFieldResponse
			if err := client.Put(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(inputsGroup, cmd)
}

// ScoreResponse is the score of a book input's latest run.
type ScoreResponse struct {
	BookInputID string `json:"book_input_id"`
	Score       int    `json:"score"`
	// Scored is false when there is nothing to score yet.
	Scored bool `json:"scored"`
}

// ScoreEndpoint handles GET /api/inputs/{id}/score.
type ScoreEndpoint struct{}

func (e *ScoreEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/inputs/{id}/score", e.handler
}

func (e *ScoreEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Score a book input
//	@Description	Percentage of evaluable correct fields the latest run got right
//	@Tags			inputs
//	@Produce		json
//	@Param			id	path		string	true	"Book input ID"
//	@Success		200	{object}	ScoreResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/inputs/{id}/score [get]
func (e *ScoreEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := evaluatorFrom(w, r)
	if svc == nil {
		return
	}
	id := r.PathValue("id")
	score, ok, err := svc.Score(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScoreResponse{BookInputID: id, Score: score, Scored: ok})
}

func (e *ScoreEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <id>",
		Short: "Score a book input's latest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ScoreResponse
			if err := client.Get(cmd.Context(), "/api/inputs/"+url.PathEscape(args[0])+"/score", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(inputsGroup, cmd)
}
