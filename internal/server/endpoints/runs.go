package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/providers"
	"github.com/jackzampolin/promptlab/internal/runs"
	"github.com/jackzampolin/promptlab/internal/store"
	"github.com/jackzampolin/promptlab/internal/svcctx"
)

const runsGroup = "runs"

// SSE event names sent by POST /api/runs.
const (
	EventStart = "start"
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// CreateRunRequest is the request body for executing a prompt.
type CreateRunRequest struct {
	PromptID    string `json:"prompt_id"`
	BookInputID string `json:"book_input_id"`
	// Model defaults to llm.default_model.
	Model string `json:"model,omitempty"`
	// Temperature overrides the prompt's temperature.
	Temperature *float64 `json:"temperature,omitempty"`
	// InvocationID names the run for cancellation; generated when empty.
	InvocationID string `json:"invocation_id,omitempty"`
	// Buffered waits for the whole reply instead of streaming it. It is
	// implied when llm.stream is false.
	Buffered bool `json:"buffered,omitempty"`
}

// RunErrorResponse reports a failed run together with its diagnostic record.
type RunErrorResponse struct {
	Error string     `json:"error"`
	Run   *store.Run `json:"run,omitempty"`
}

// StartEvent is the payload of the start event.
type StartEvent struct {
	InvocationID string `json:"invocation_id"`
}

// ChunkEvent is the payload of a chunk event.
type ChunkEvent struct {
	Delta string `json:"delta"`
}

// CreateRunEndpoint handles POST /api/runs.
type CreateRunEndpoint struct{}

func (e *CreateRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/runs", e.handler
}

func (e *CreateRunEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Execute a run
//	@Description	Streams the prompt against the book input. With Accept: text/event-stream the
//	@Description	response is a start event, one chunk event per delta, then done or error.
//	@Description	Otherwise the finished run is returned as JSON. Closing the connection cancels the run.
//	@Tags			runs
//	@Accept			json
//	@Produce		json,text/event-stream
//	@Param			request	body		CreateRunRequest	true	"Run request"
//	@Success		201		{object}	store.Run
//	@Success		200		{object}	store.Run	"Cancelled run"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Invocation ID already running"
//	@Failure		422		{object}	ErrorResponse
//	@Failure		502		{object}	RunErrorResponse
//	@Router			/api/runs [post]
func (e *CreateRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PromptID == "" || req.BookInputID == "" {
		writeError(w, http.StatusBadRequest, "prompt_id and book_input_id are required")
		return
	}
	if t := req.Temperature; t != nil && (*t < 0 || *t > 1) {
		writeError(w, http.StatusBadRequest, "temperature must be between 0 and 1")
		return
	}

	exec := svcctx.ExecutorFrom(r.Context())
	if exec == nil {
		writeError(w, http.StatusServiceUnavailable, "executor not initialized")
		return
	}
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		llm := cm.Get().LLM
		if req.Model == "" {
			req.Model = llm.DefaultModel
		}
		req.Buffered = req.Buffered || !llm.Stream
	}

	runReq := runs.Request{
		PromptID:     req.PromptID,
		BookInputID:  req.BookInputID,
		Model:        req.Model,
		Temperature:  req.Temperature,
		InvocationID: req.InvocationID,
		Buffered:     req.Buffered,
	}

	if !wantsEventStream(r) {
		run, err := exec.Execute(r.Context(), runReq)
		switch {
		case err == nil:
			writeJSON(w, http.StatusCreated, run)
		case errors.Is(err, runs.ErrCancelled):
			writeJSON(w, http.StatusOK, run)
		case run != nil:
			writeJSON(w, http.StatusBadGateway, RunErrorResponse{Error: err.Error(), Run: run})
		default:
			writeServiceError(w, r, err)
		}
		return
	}

	// Headers are committed on start so validation failures can still be
	// reported with a status code.
	sse := newEventWriter(w)
	runReq.OnStart = func(invocationID string) {
		sse.open()
		sse.send(EventStart, StartEvent{InvocationID: invocationID})
	}
	runReq.OnChunk = func(c providers.StreamChunk) error {
		return sse.send(EventChunk, ChunkEvent{Delta: c.Delta})
	}

	run, err := exec.Execute(r.Context(), runReq)
	switch {
	case !sse.opened:
		writeServiceError(w, r, err)
	case err == nil || errors.Is(err, runs.ErrCancelled):
		sse.send(EventDone, run)
	default:
		sse.send(EventError, RunErrorResponse{Error: err.Error(), Run: run})
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// eventWriter writes server-sent events, flushing after each one.
type eventWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *eventWriter) open() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.opened = true
}

func (s *eventWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush %s event: %w", event, err)
	}
	return nil
}

func (e *CreateRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	var model, invocationID string
	var temperature float64
	var stream, buffered bool
	cmd := &cobra.Command{
		Use:   "create <prompt-id> <input-id>",
		Short: "Run a prompt against a book input",
		Long: `Run a prompt against a book input.

With --stream the model output is printed as it arrives and the finished
run follows. Interrupting the command cancels the run; its partial output
is kept with status "cancelled".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateRunRequest{
				PromptID:     args[0],
				BookInputID:  args[1],
				Model:        model,
				InvocationID: invocationID,
				Buffered:     buffered,
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			client := api.NewClient(getServerURL())

			if !stream {
				var resp store.Run
				if err := client.Post(cmd.Context(), "/api/runs", req, &resp); err != nil {
					return err
				}
				return api.Output(resp)
			}

			out := cmd.OutOrStdout()
			var final any
			var runErr error
			err := client.Stream(cmd.Context(), "/api/runs", req, func(ev api.Event) error {
				switch ev.Name {
				case EventStart:
					var start StartEvent
					if err := json.Unmarshal([]byte(ev.Data), &start); err == nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "invocation %s\n", start.InvocationID)
					}
				case EventChunk:
					var chunk ChunkEvent
					if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
						return fmt.Errorf("bad chunk event: %w", err)
					}
					fmt.Fprint(out, chunk.Delta)
				case EventDone:
					var run store.Run
					if err := json.Unmarshal([]byte(ev.Data), &run); err != nil {
						return fmt.Errorf("bad done event: %w", err)
					}
					final = run
				case EventError:
					var resp RunErrorResponse
					if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
						return fmt.Errorf("bad error event: %w", err)
					}
					if resp.Run != nil {
						final = resp.Run
					}
					runErr = errors.New(resp.Error)
				}
				return nil
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if final != nil {
				if err := api.Output(final); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model ID (default: llm.default_model)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Override the prompt's temperature")
	cmd.Flags().StringVar(&invocationID, "invocation-id", "", "Name the run for cancellation")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print output as it streams")
	cmd.Flags().BoolVar(&buffered, "buffered", false, "Ask the model for the whole reply in one call")
	return api.Grouped(runsGroup, cmd)
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Runs []store.Run `json:"runs"`
}

// ListRunsEndpoint handles GET /api/runs.
type ListRunsEndpoint struct{}

func (e *ListRunsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs", e.handler
}

func (e *ListRunsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List runs
//	@Description	Runs newest first, optionally filtered
//	@Tags			runs
//	@Produce		json
//	@Param			input	query		string	false	"Filter by book input ID"
//	@Param			prompt	query		string	false	"Filter by prompt ID"
//	@Param			status	query		string	false	"Filter by status (completed, failed, cancelled)"
//	@Param			starred	query		bool	false	"Only starred runs"
//	@Param			limit	query		int		false	"Maximum number of runs"
//	@Success		200		{object}	ListRunsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/runs [get]
func (e *ListRunsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	filter, err := runFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	list, err := st.ListRuns(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: list})
}

func runFilterFromQuery(q url.Values) (store.RunFilter, error) {
	f := store.RunFilter{
		BookInputID: q.Get("input"),
		PromptID:    q.Get("prompt"),
		Status:      store.RunStatus(q.Get("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("invalid status %q", f.Status)
	}
	if v := q.Get("starred"); v != "" {
		starred, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid starred %q", v)
		}
		f.StarredOnly = starred
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = limit
	}
	return f, nil
}

func (e *ListRunsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var input, prompt, status string
	var starred bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if input != "" {
				params.Set("input", input)
			}
			if prompt != "" {
				params.Set("prompt", prompt)
			}
			if status != "" {
				params.Set("status", status)
			}
			if starred {
				params.Set("starred", "true")
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/runs"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp ListRunsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Filter by book input ID")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Filter by prompt ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().BoolVar(&starred, "starred", false, "Only starred runs")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs")
	return api.Grouped(runsGroup, cmd)
}

// GetRunEndpoint handles GET /api/runs/{id}.
type GetRunEndpoint struct{}

func (e *GetRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}", e.handler
}

func (e *GetRunEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	store.Run
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/runs/{id} [get]
func (e *GetRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	run, err := st.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (e *GetRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.Run
			if err := client.Get(cmd.Context(), "/api/runs/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(runsGroup, cmd)
}

// AnnotateRunRequest is the request body for annotating a run. Only the
// human annotation fields of a run are mutable.
type AnnotateRunRequest struct {
	Notes   *string `json:"notes,omitempty"`
	Starred *bool   `json:"starred,omitempty"`
}

// AnnotateRunEndpoint handles PATCH /api/runs/{id}.
type AnnotateRunEndpoint struct{}

func (e *AnnotateRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/runs/{id}", e.handler
}

func (e *AnnotateRunEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Annotate a run
//	@Description	Set notes or the star tag on a run
//	@Tags			runs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Run ID"
//	@Param			request	body		AnnotateRunRequest	true	"Annotations"
//	@Success		200		{object}	store.Run
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/runs/{id} [patch]
func (e *AnnotateRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req AnnotateRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Notes == nil && req.Starred == nil {
		writeError(w, http.StatusBadRequest, "notes or starred is required")
		return
	}
	st := storeFrom(w, r)
	if st == nil {
		return
	}
	run, err := st.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Notes != nil {
		run.Notes = *req.Notes
	}
	if req.Starred != nil {
		run.Starred = *req.Starred
	}
	if err := st.UpdateRun(r.Context(), run); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (e *AnnotateRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	var notes string
	var starred bool
	cmd := &cobra.Command{
		Use:   "annotate <id>",
		Short: "Set notes or the star tag on a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req AnnotateRunRequest
			if cmd.Flags().Changed("notes") {
				req.Notes = &notes
			}
			if cmd.Flags().Changed("star") {
				req.Starred = &starred
			}
			if req.Notes == nil && req.Starred == nil {
				return fmt.Errorf("--notes or --star is required")
			}
			client := api.NewClient(getServerURL())
			var resp store.Run
			if err := client.Patch(cmd.Context(), "/api/runs/"+url.PathEscape(args[0]), req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Notes text (empty clears)")
	cmd.Flags().BoolVar(&starred, "star", false, "Star (--star) or unstar (--star=false) the run")
	return api.Grouped(runsGroup, cmd)
}

// CancelResponse reports whether an invocation was cancelled.
type CancelResponse struct {
	InvocationID string `json:"invocation_id"`
	Cancelled    bool   `json:"cancelled"`
}

// CancelInvocationEndpoint handles POST /api/invocations/{id}/cancel.
type CancelInvocationEndpoint struct{}

func (e *CancelInvocationEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/invocations/{id}/cancel", e.handler
}

func (e *CancelInvocationEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a running invocation
//	@Description	Stops a streaming run. The run is persisted with its partial output and status cancelled.
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Invocation ID"
//	@Success		200	{object}	CancelResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/invocations/{id}/cancel [post]
func (e *CancelInvocationEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	exec := svcctx.ExecutorFrom(r.Context())
	if exec == nil {
		writeError(w, http.StatusServiceUnavailable, "executor not initialized")
		return
	}
	id := r.PathValue("id")
	if !exec.Tracker().Cancel(id) {
		writeError(w, http.StatusNotFound, "no running invocation "+id)
		return
	}
	if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
		logger.Info("invocation cancel requested", "invocation_id", id)
	}
	writeJSON(w, http.StatusOK, CancelResponse{InvocationID: id, Cancelled: true})
}

func (e *CancelInvocationEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <invocation-id>",
		Short: "Cancel a running invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelResponse
			path := "/api/invocations/" + url.PathEscape(args[0]) + "/cancel"
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	return api.Grouped(runsGroup, cmd)
}
