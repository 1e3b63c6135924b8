// Package providers talks to chat-completion models.
package providers

import (
	"context"
	"errors"
	"time"
)

// ErrNoChoices is returned when a completion response carries no choices.
var ErrNoChoices = errors.New("no choices in response")

// LLMClient is the interface the rest of the app uses for model calls.
type LLMClient interface {
	// Chat sends a chat completion request and waits for the full reply.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// ChatStream sends a chat completion request and hands every content
	// delta to onChunk in arrival order. The next delta is not read until
	// onChunk returns; a non-nil return aborts the stream with that error.
	// The summary is returned even when err is non-nil and holds whatever
	// arrived before the failure.
	ChatStream(ctx context.Context, req *ChatRequest, onChunk func(StreamChunk) error) (*StreamSummary, error)

	// ListModels returns the models the provider can route to.
	ListModels(ctx context.Context) ([]Model, error)

	// Name returns the client identifier (e.g., "openrouter").
	Name() string
}

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	RequestID string `json:"-"`
}

// NewChatRequest builds the two-message request used for extraction runs.
func NewChatRequest(system, user, model string, temperature float64, maxTokens int) *ChatRequest {
	return &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Usage is token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	ExecutionTime time.Duration `json:"execution_time"`
}

// StreamChunk is one content delta of a streamed completion.
type StreamChunk struct {
	Delta string `json:"delta"`
}

// StreamSummary closes a streamed completion.
type StreamSummary struct {
	FinishReason string `json:"finish_reason"`
	Usage
	ModelUsed string `json:"model_used,omitempty"`
	Chunks    int    `json:"chunks"`
}

// Finish reasons reported by OpenAI-compatible APIs.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)
