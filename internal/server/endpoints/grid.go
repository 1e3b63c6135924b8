package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/evaluate"
)

// GridResponse is every book input with its latest run and score.
type GridResponse struct {
	Rows []evaluate.GridRow `json:"rows"`
}

// GridEndpoint handles GET /api/grid.
type GridEndpoint struct{}

func (e *GridEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/grid", e.handler
}

func (e *GridEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Score grid
//	@Description	Every book input with its most recent run and that run's score
//	@Tags			inputs
//	@Produce		json
//	@Success		200	{object}	GridResponse
//	@Router			/api/grid [get]
func (e *GridEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := evaluatorFrom(w, r)
	if svc == nil {
		return
	}
	rows, err := svc.Grid(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GridResponse{Rows: rows})
}

func (e *GridEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "grid",
		Short: "Show every book input with its latest run and score",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GridResponse
			if err := client.Get(cmd.Context(), "/api/grid", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
