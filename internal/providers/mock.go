package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration // Delay before each streamed chunk and before Chat returns
	ShouldFail   bool
	FailAfter    int      // Fail after N requests (0 = never)
	ResponseText string   // Chat reply; streamed as a single chunk when Chunks is empty
	Chunks       []string // Streamed deltas
	FinishReason string   // Defaults to "stop"
	StreamErr    error    // Returned after all chunks are sent
	Models       []Model
	ModelsErr    error

	// OnChunkSent, when set, is called after each chunk is handed to the
	// caller. Tests use it to cancel mid-stream.
	OnChunkSent func(i int)

	// State
	requestCount atomic.Int64
	modelCalls   atomic.Int64

	mu       sync.Mutex
	requests []ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
		FinishReason: FinishStop,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

func (c *MockClient) record(req *ChatRequest) (int64, error) {
	count := c.requestCount.Add(1)
	c.mu.Lock()
	c.requests = append(c.requests, *req)
	c.mu.Unlock()

	if c.ShouldFail {
		return count, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return count, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}
	return count, nil
}

func (c *MockClient) wait(ctx context.Context) error {
	if c.Latency == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(c.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MockClient) usage(req *ChatRequest, text string) Usage {
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	completionTokens := len(text) / 4
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

func (c *MockClient) finishReason() string {
	if c.FinishReason == "" {
		return FinishStop
	}
	return c.FinishReason
}

// Chat returns ResponseText after Latency.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count, err := c.record(req)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return &ChatResult{
		Content:       c.ResponseText,
		FinishReason:  c.finishReason(),
		Usage:         c.usage(req, c.ResponseText),
		Provider:      MockClientName,
		ModelUsed:     req.Model,
		RequestID:     fmt.Sprintf("mock-%d", count),
		Attempts:      1,
		ExecutionTime: time.Since(start),
	}, nil
}

// ChatStream sends Chunks (or ResponseText) one at a time, then StreamErr.
func (c *MockClient) ChatStream(ctx context.Context, req *ChatRequest, onChunk func(StreamChunk) error) (*StreamSummary, error) {
	summary := &StreamSummary{ModelUsed: req.Model}
	if _, err := c.record(req); err != nil {
		return summary, err
	}

	chunks := c.Chunks
	if len(chunks) == 0 && c.ResponseText != "" {
		chunks = []string{c.ResponseText}
	}

	var sent string
	for i, delta := range chunks {
		if err := c.wait(ctx); err != nil {
			return summary, err
		}
		if err := onChunk(StreamChunk{Delta: delta}); err != nil {
			return summary, err
		}
		sent += delta
		summary.Chunks++
		if c.OnChunkSent != nil {
			c.OnChunkSent(i)
		}
	}
	if c.StreamErr != nil {
		return summary, c.StreamErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	summary.FinishReason = c.finishReason()
	summary.Usage = c.usage(req, sent)
	return summary, nil
}

// ListModels returns Models or ModelsErr.
func (c *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	c.modelCalls.Add(1)
	if c.ModelsErr != nil {
		return nil, c.ModelsErr
	}
	return c.Models, nil
}

// RequestCount returns the number of chat requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// ModelCalls returns the number of ListModels calls.
func (c *MockClient) ModelCalls() int64 {
	return c.modelCalls.Load()
}

// LastRequest returns the most recent chat request.
func (c *MockClient) LastRequest() (ChatRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return ChatRequest{}, false
	}
	return c.requests[len(c.requests)-1], true
}

// Reset resets the request counters.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.modelCalls.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.mu.Unlock()
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
