// Package runs executes prompts against book inputs through a streaming
// model call and records the outcome.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/promptlab/internal/evaluate"
	"github.com/jackzampolin/promptlab/internal/providers"
	"github.com/jackzampolin/promptlab/internal/store"
)

var (
	// ErrCancelled reports a run stopped by the user or by the caller's
	// context. The partial run is still persisted; it is not a failure.
	ErrCancelled = errors.New("run cancelled")

	// ErrEmptyOutput is returned when the model finished without text.
	ErrEmptyOutput = errors.New("model returned no output")

	// ErrNoClient is returned when no LLM client is configured.
	ErrNoClient = errors.New("no LLM client configured")

	// ErrInvocationActive is returned when a run reuses the id of an
	// invocation that is still in flight.
	ErrInvocationActive = errors.New("invocation already running")
)

// FinishCancelled is the finish reason recorded for cancelled runs.
const FinishCancelled = "cancelled"

// ClientSource yields the LLM client to use for the next run.
type ClientSource interface {
	Client() providers.LLMClient
}

// Request describes one run.
type Request struct {
	PromptID    string `json:"prompt_id"`
	BookInputID string `json:"book_input_id"`
	Model       string `json:"model"`
	// Temperature overrides the prompt's temperature when set.
	Temperature *float64 `json:"temperature,omitempty"`

	// InvocationID names the run for cancellation; generated when empty.
	InvocationID string `json:"invocation_id,omitempty"`

	// OnStart, when set, receives the invocation id before streaming starts.
	OnStart func(invocationID string) `json:"-"`
	// OnChunk, when set, receives every delta in order before the next one
	// is read. A non-nil return aborts the run as a failure.
	OnChunk func(providers.StreamChunk) error `json:"-"`

	// Buffered makes one non-streaming call. The whole reply reaches
	// OnChunk as a single chunk.
	Buffered bool `json:"buffered,omitempty"`
}

// Executor runs prompts. It never retries.
type Executor struct {
	store   store.Store
	clients ClientSource
	eval    *evaluate.Service
	tracker *Tracker
	logger  *slog.Logger
}

// NewExecutor wires an executor.
func NewExecutor(s store.Store, clients ClientSource, eval *evaluate.Service, tracker *Tracker, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Executor{store: s, clients: clients, eval: eval, tracker: tracker, logger: logger}
}

// Tracker returns the executor's invocation tracker.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// Execute streams the prompt against the book input and persists the run.
//
// A completed run has its discovered fields stored and linked. A cancelled
// run keeps its partial output and is returned together with ErrCancelled.
// Stream errors, empty output and finish reasons other than "stop" persist
// a failed run and return it with a descriptive error. Validation errors
// (missing prompt or input, empty OCR) return a nil run.
func (e *Executor) Execute(ctx context.Context, req Request) (*store.Run, error) {
	prompt, err := e.store.GetPrompt(ctx, req.PromptID)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	input, err := e.store.GetBookInput(ctx, req.BookInputID)
	if err != nil {
		return nil, fmt.Errorf("load book input: %w", err)
	}
	if strings.TrimSpace(input.OCRMarkdown) == "" {
		return nil, fmt.Errorf("book input %s: %w", input.ID, evaluate.ErrEmptyMarkdown)
	}
	client := e.clients.Client()
	if client == nil {
		return nil, ErrNoClient
	}

	temperature := prompt.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	invocationID := req.InvocationID
	if invocationID == "" {
		invocationID = uuid.NewString()
	}

	runCtx, done, err := e.tracker.Start(ctx, invocationID)
	if err != nil {
		return nil, err
	}
	defer done()
	if req.OnStart != nil {
		req.OnStart(invocationID)
	}

	logger := e.logger.With("invocation_id", invocationID, "prompt_id", prompt.ID, "book_input_id", input.ID)
	logger.Info("run started", "model", req.Model, "temperature", temperature)

	start := time.Now()
	var output strings.Builder
	chatReq := providers.NewChatRequest(prompt.Text, input.OCRMarkdown, req.Model, temperature, MaxTokens(input.OCRMarkdown))
	onChunk := func(c providers.StreamChunk) error {
		output.WriteString(c.Delta)
		if req.OnChunk != nil {
			return req.OnChunk(c)
		}
		return nil
	}
	var summary *providers.StreamSummary
	var streamErr error
	if req.Buffered {
		summary, streamErr = complete(runCtx, client, chatReq, onChunk)
	} else {
		summary, streamErr = client.ChatStream(runCtx, chatReq, onChunk)
	}
	if summary == nil {
		summary = &providers.StreamSummary{}
	}

	run := &store.Run{
		PromptID:         prompt.ID,
		BookInputID:      input.ID,
		Model:            req.Model,
		Temperature:      temperature,
		Output:           output.String(),
		FinishReason:     summary.FinishReason,
		PromptTokens:     summary.PromptTokens,
		CompletionTokens: summary.CompletionTokens,
		TotalTokens:      summary.TotalTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}
	if run.Model == "" {
		run.Model = summary.ModelUsed
	}

	// Persist with a context the cancellation does not reach.
	saveCtx := context.WithoutCancel(ctx)

	switch {
	case runCtx.Err() != nil:
		run.Status = store.RunCancelled
		run.FinishReason = FinishCancelled
		if err := e.save(saveCtx, logger, run); err != nil {
			return nil, err
		}
		logger.Info("run cancelled", "run_id", run.ID, "output_chars", len(run.Output))
		return run, ErrCancelled

	case streamErr != nil:
		return e.fail(saveCtx, logger, run, fmt.Errorf("model stream failed: %w", streamErr))

	case summary.FinishReason != providers.FinishStop:
		return e.fail(saveCtx, logger, run, fmt.Errorf("model stopped with finish reason %q", summary.FinishReason))

	case strings.TrimSpace(run.Output) == "":
		return e.fail(saveCtx, logger, run, ErrEmptyOutput)
	}

	fieldSetID, err := e.eval.ParseAndStore(saveCtx, run.Output)
	if err != nil {
		return e.fail(saveCtx, logger, run, err)
	}
	run.DiscoveredFieldsID = fieldSetID
	run.Status = store.RunCompleted
	if err := e.save(saveCtx, logger, run); err != nil {
		return nil, err
	}
	logger.Info("run completed", "run_id", run.ID, "total_tokens", run.TotalTokens, "latency_ms", run.LatencyMs)
	return run, nil
}

// complete makes a single Chat call and reports it the way a stream would.
func complete(ctx context.Context, client providers.LLMClient, req *providers.ChatRequest, onChunk func(providers.StreamChunk) error) (*providers.StreamSummary, error) {
	res, err := client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	summary := &providers.StreamSummary{
		FinishReason: res.FinishReason,
		Usage:        res.Usage,
		ModelUsed:    res.ModelUsed,
	}
	if res.Content != "" {
		if err := onChunk(providers.StreamChunk{Delta: res.Content}); err != nil {
			return summary, err
		}
		summary.Chunks = 1
	}
	return summary, nil
}

// fail persists run as a diagnostic failed record and returns cause.
func (e *Executor) fail(ctx context.Context, logger *slog.Logger, run *store.Run, cause error) (*store.Run, error) {
	run.Status = store.RunFailed
	run.Error = cause.Error()
	logger.Error("run failed", "error", cause, "finish_reason", run.FinishReason, "output_chars", len(run.Output))
	if err := e.save(ctx, logger, run); err != nil {
		return nil, errors.Join(cause, err)
	}
	return run, cause
}

func (e *Executor) save(ctx context.Context, logger *slog.Logger, run *store.Run) error {
	if err := e.store.CreateRun(ctx, run); err != nil {
		logger.Error("failed to persist run", "status", run.Status, "error", err)
		return fmt.Errorf("persist run: %w", err)
	}
	return nil
}
