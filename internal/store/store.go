// Package store persists book inputs, prompts, runs, and field sets.
//
// Three backends implement Store: DefraStore (the default, a DefraDB node
// reached over GraphQL), SQLStore (gorm over MySQL, Postgres or SQLite) and
// MemoryStore (tests and throwaway sessions).
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/promptlab/internal/fields"
)

// ErrNotFound is returned when a record id does not resolve.
var ErrNotFound = errors.New("not found")

// BookInput is OCR'd front matter to run prompts against.
type BookInput struct {
	ID                string    `json:"id"`
	Label             string    `json:"label"`
	OCRMarkdown       string    `json:"ocr_markdown"`
	ReferenceMarkdown string    `json:"reference_markdown,omitempty"`
	CorrectFieldsID   string    `json:"correct_fields_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Prompt is a system instruction under test.
type Prompt struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Text        string    `json:"text"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Run is one execution of a prompt against a book input.
type Run struct {
	ID                 string    `json:"id"`
	PromptID           string    `json:"prompt_id"`
	BookInputID        string    `json:"book_input_id"`
	Model              string    `json:"model"`
	Temperature        float64   `json:"temperature"`
	Output             string    `json:"output"`
	Status             RunStatus `json:"status"`
	FinishReason       string    `json:"finish_reason,omitempty"`
	PromptTokens       int       `json:"prompt_tokens"`
	CompletionTokens   int       `json:"completion_tokens"`
	TotalTokens        int       `json:"total_tokens"`
	DiscoveredFieldsID string    `json:"discovered_fields_id,omitempty"`
	Starred            bool      `json:"starred"`
	Notes              string    `json:"notes,omitempty"`
	Error              string    `json:"error,omitempty"`
	LatencyMs          int64     `json:"latency_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	BookInputID string
	PromptID    string
	Status      RunStatus
	StarredOnly bool
	Limit       int
}

// Store is the persistence boundary. Create methods assign ID and CreatedAt
// when unset. Get and Update return ErrNotFound for unknown ids. Lists are
// newest first.
type Store interface {
	CreateBookInput(ctx context.Context, in *BookInput) error
	GetBookInput(ctx context.Context, id string) (*BookInput, error)
	ListBookInputs(ctx context.Context) ([]BookInput, error)
	UpdateBookInput(ctx context.Context, in *BookInput) error

	CreatePrompt(ctx context.Context, p *Prompt) error
	GetPrompt(ctx context.Context, id string) (*Prompt, error)
	ListPrompts(ctx context.Context) ([]Prompt, error)
	UpdatePrompt(ctx context.Context, p *Prompt) error

	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, f RunFilter) ([]Run, error)
	UpdateRun(ctx context.Context, r *Run) error
	// LatestRun returns the most recent run for a book input.
	LatestRun(ctx context.Context, bookInputID string) (*Run, error)

	CreateFieldSet(ctx context.Context, s fields.Set) (string, error)
	GetFieldSet(ctx context.Context, id string) (fields.Set, error)
	// UpdateFieldSet replaces every column of the row.
	UpdateFieldSet(ctx context.Context, id string, s fields.Set) error

	Close() error
}

// Validate checks the required fields of a book input.
func (in *BookInput) Validate() error {
	if in.Label == "" {
		return fmt.Errorf("label is required")
	}
	return nil
}

// Validate checks the required fields of a prompt.
func (p *Prompt) Validate() error {
	if p.Label == "" {
		return fmt.Errorf("label is required")
	}
	if p.Temperature < 0 || p.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", p.Temperature)
	}
	return nil
}

// Matches reports whether r passes the filter.
func (f RunFilter) Matches(r *Run) bool {
	if f.BookInputID != "" && r.BookInputID != f.BookInputID {
		return false
	}
	if f.PromptID != "" && r.PromptID != f.PromptID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.StarredOnly && !r.Starred {
		return false
	}
	return true
}

// newestFirst sorts records by CreatedAt descending, breaking ties with
// seq descending so later inserts win.
func newestFirst[T any](items []T, created func(T) time.Time, seq func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return seq(items[i]) > seq(items[j])
	})
}

// now is the clock used for CreatedAt. Truncated to microseconds so every
// backend round-trips the same value.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

var lastSeq atomic.Int64

// nextSeq returns a strictly increasing sequence number seeded from the
// wall clock, so ordering survives restarts.
func nextSeq() int64 {
	for {
		last := lastSeq.Load()
		n := time.Now().UnixNano()
		if n <= last {
			n = last + 1
		}
		if lastSeq.CompareAndSwap(last, n) {
			return n
		}
	}
}
