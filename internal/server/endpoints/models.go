package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/providers"
	"github.com/jackzampolin/promptlab/internal/svcctx"
)

// ModelsResponse is the provider's model catalogue.
type ModelsResponse struct {
	Models []providers.Model `json:"models"`
}

// ListModelsEndpoint handles GET /api/models.
type ListModelsEndpoint struct{}

func (e *ListModelsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/models", e.handler
}

func (e *ListModelsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List models
//	@Description	Models the LLM provider can route to. Fetched once and cached for the life of the server.
//	@Tags			models
//	@Produce		json
//	@Success		200	{object}	ModelsResponse
//	@Failure		502	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/models [get]
func (e *ListModelsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cache := svcctx.ModelsFrom(r.Context())
	holder := svcctx.LLMFrom(r.Context())
	if cache == nil || holder == nil || holder.Client() == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM client configured")
		return
	}
	models, err := cache.Models(r.Context(), holder.Client())
	if err != nil {
		if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
			logger.Warn("list models failed", "error", err)
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}

func (e *ListModelsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the LLM provider can route to",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ModelsResponse
			if err := client.Get(cmd.Context(), "/api/models", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
