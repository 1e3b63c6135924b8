// Package evaluate turns model output into stored field sets, scores runs
// against the hand-labelled correct set of their book input, and applies
// corrections to that set.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/store"
)

// ErrEmptyMarkdown is returned by ParseAndStore for empty input.
var ErrEmptyMarkdown = errors.New("markdown is empty")

// Service evaluates runs against a Store.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates an evaluation service.
func NewService(s store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, logger: logger}
}

// ParseAndStore extracts every field from markdown and inserts the result
// as a new field set. Empty markdown fails without touching the store;
// whitespace-only markdown is stored as a set with every field empty.
func (s *Service) ParseAndStore(ctx context.Context, markdown string) (string, error) {
	if markdown == "" {
		return "", ErrEmptyMarkdown
	}
	id, err := s.store.CreateFieldSet(ctx, fields.ExtractSet(markdown))
	if err != nil {
		return "", fmt.Errorf("store discovered fields: %w", err)
	}
	return id, nil
}

// Score returns the percentage score of the latest run of a book input.
// ok is false, with a nil error, when there is nothing to score: no correct
// set, no run, no discovered set on the latest run, or a correct set with
// no present fields.
func (s *Service) Score(ctx context.Context, bookInputID string) (score int, ok bool, err error) {
	in, err := s.store.GetBookInput(ctx, bookInputID)
	if err != nil {
		return 0, false, err
	}
	run, err := s.store.LatestRun(ctx, bookInputID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return s.scoreRun(ctx, in, run)
}

func (s *Service) scoreRun(ctx context.Context, in *store.BookInput, run *store.Run) (int, bool, error) {
	if in.CorrectFieldsID == "" || run == nil || run.DiscoveredFieldsID == "" {
		return 0, false, nil
	}
	correct, err := s.store.GetFieldSet(ctx, in.CorrectFieldsID)
	if err != nil {
		return 0, false, fmt.Errorf("load correct fields: %w", err)
	}
	discovered, err := s.store.GetFieldSet(ctx, run.DiscoveredFieldsID)
	if err != nil {
		return 0, false, fmt.Errorf("load discovered fields: %w", err)
	}
	score, ok := fields.Score(correct, discovered)
	return score, ok, nil
}

// RunComparison is the per-field breakdown of one run.
type RunComparison struct {
	Run   *store.Run   `json:"run"`
	Rows  []fields.Row `json:"rows"`
	Score int          `json:"score"`
	// Scored is false when the book input has no evaluable correct set.
	Scored bool `json:"scored"`
}

// CompareRun pairs the run's discovered fields with its book input's correct
// fields. Missing sets compare as all Unknown.
func (s *Service) CompareRun(ctx context.Context, runID string) (*RunComparison, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	in, err := s.store.GetBookInput(ctx, run.BookInputID)
	if err != nil {
		return nil, err
	}

	correct, err := s.fieldSetOrUnknown(ctx, in.CorrectFieldsID)
	if err != nil {
		return nil, fmt.Errorf("load correct fields: %w", err)
	}
	discovered, err := s.fieldSetOrUnknown(ctx, run.DiscoveredFieldsID)
	if err != nil {
		return nil, fmt.Errorf("load discovered fields: %w", err)
	}

	score, ok := fields.Score(correct, discovered)
	return &RunComparison{
		Run:    run,
		Rows:   fields.CompareSets(correct, discovered),
		Score:  score,
		Scored: ok,
	}, nil
}

func (s *Service) fieldSetOrUnknown(ctx context.Context, id string) (fields.Set, error) {
	if id == "" {
		return fields.NewSet(), nil
	}
	return s.store.GetFieldSet(ctx, id)
}

// GridRow is one book input with its latest run and score.
type GridRow struct {
	Input     store.BookInput `json:"input"`
	LatestRun *store.Run      `json:"latest_run,omitempty"`
	Score     int             `json:"score"`
	Scored    bool            `json:"scored"`
}

// Grid scores every book input by its latest run.
func (s *Service) Grid(ctx context.Context) ([]GridRow, error) {
	inputs, err := s.store.ListBookInputs(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]GridRow, 0, len(inputs))
	for i := range inputs {
		row := GridRow{Input: inputs[i]}
		run, err := s.store.LatestRun(ctx, inputs[i].ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			row.LatestRun = run
			row.Score, row.Scored, err = s.scoreRun(ctx, &inputs[i], run)
			if err != nil {
				return nil, fmt.Errorf("score %s: %w", inputs[i].ID, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
