package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/store"
)

const promptsGroup = "prompts"

// CreatePromptRequest is the request body for creating a prompt.
type CreatePromptRequest struct {
	Label       string  `json:"label"`
	Text        string  `json:"text"`
	Temperature float64 `json:"temperature"`
}

// UpdatePromptRequest is the request body for editing a prompt.
// Nil fields are left unchanged.
type UpdatePromptRequest struct {
	Label       *string  `json:"label,omitempty"`
	Text        *string  `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ListPromptsResponse contains all prompts.
type ListPromptsResponse struct {
	Prompts []store.Prompt `json:"prompts"`
}

// CreatePromptEndpoint handles POST /api/prompts.
type CreatePromptEndpoint struct{}

func (e *CreatePromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/prompts", e.handler
}

func (e *CreatePromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create a prompt
//	@Description	Store a system instruction and its default temperature (0-1)
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreatePromptRequest	true	"Prompt"
//	@Success		201		{object}	store.Prompt
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/prompts [post]
func (e *CreatePromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st := storeFrom(w, r)
	if st == nil {
		return
	}

	p := &store.Prompt{Label: req.Label, Text: req.Text, Temperature: req.Temperature}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := st.CreatePrompt(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (e *CreatePromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	var label, textFile string
	var temperature float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a prompt from a text file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if label == "" || textFile == "" {
				return fmt.Errorf("--label and --file are required")
			}
			text, err := os.ReadFile(textFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", textFile, err)
			}
			client := api.NewClient(getServerURL())
			var resp store.Prompt
			req := CreatePromptRequest{Label: label, Text: string(text), Temperature: temperature}
			if err := client.Post(cmd.Context(), "/api/prompts", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Prompt label (required)")
	cmd.Flags().StringVarP(&textFile, "file", "f", "", "Prompt text file (required)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature between 0 and 1")
	return api.Grouped(promptsGroup, cmd)
}

// ListPromptsEndpoint handles GET /api/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List prompts
//	@Description	All prompts, newest first
//	@Tags			prompts
//	@Produce		json
//	@Success		200	{object}	ListPromptsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts [get]
func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	prompts, err := st.ListPrompts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListPromptsResponse{Prompts: prompts})
}

func (e *ListPromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListPromptsResponse
			if err := client.Get(cmd.Context(), "/api/prompts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(promptsGroup, cmd)
}

// GetPromptEndpoint handles GET /api/prompts/{id}.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{id}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a prompt
//	@Tags			prompts
//	@Produce		json
//	@Param			id	path		string	true	"Prompt ID"
//	@Success		200	{object}	store.Prompt
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/prompts/{id} [get]
func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	p, err := st.GetPrompt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.Prompt
			if err := client.Get(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(promptsGroup, cmd)
}

// UpdatePromptEndpoint handles PUT /api/prompts/{id}.
type UpdatePromptEndpoint struct{}

func (e *UpdatePromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/prompts/{id}", e.handler
}

func (e *UpdatePromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update a prompt
//	@Description	Edit a prompt's label, text or temperature. Existing runs keep the values they ran with.
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Prompt ID"
//	@Param			request	body		UpdatePromptRequest	true	"Fields to change"
//	@Success		200		{object}	store.Prompt
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/prompts/{id} [put]
func (e *UpdatePromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req UpdatePromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	p, err := st.GetPrompt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Label != nil {
		p.Label = *req.Label
	}
	if req.Text != nil {
		p.Text = *req.Text
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := st.UpdatePrompt(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *UpdatePromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	var label, textFile string
	var temperature float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req UpdatePromptRequest
			if cmd.Flags().Changed("label") {
				req.Label = &label
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", textFile, err)
				}
				text := string(data)
				req.Text = &text
			}
			client := api.NewClient(getServerURL())
			var resp store.Prompt
			if err := client.Put(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "New label")
	cmd.Flags().StringVarP(&textFile, "file", "f", "", "Replacement prompt text file")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "New temperature between 0 and 1")
	return api.Grouped(promptsGroup, cmd)
}
