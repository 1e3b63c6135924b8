package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/store"
)

// MarkCorrect copies the run's discovered value for key into the correct set
// of the run's book input, creating and linking that set when absent. A
// missing run, book input or discovered set is logged and reported as
// applied=false with a nil error.
func (s *Service) MarkCorrect(ctx context.Context, runID, key string) (applied bool, err error) {
	if _, ok := fields.Lookup(key); !ok {
		return false, fmt.Errorf("%w: %q", fields.ErrUnknownKey, key)
	}

	run, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("mark correct: run not found", "run_id", runID, "key", key)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if run.DiscoveredFieldsID == "" {
		s.logger.Warn("mark correct: run has no discovered fields", "run_id", runID, "key", key)
		return false, nil
	}

	in, err := s.store.GetBookInput(ctx, run.BookInputID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("mark correct: book input not found", "run_id", runID, "book_input_id", run.BookInputID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	discovered, err := s.store.GetFieldSet(ctx, run.DiscoveredFieldsID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("mark correct: discovered fields not found", "run_id", runID, "field_set_id", run.DiscoveredFieldsID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.writeCorrect(ctx, in, key, discovered.Get(key).Trimmed()); err != nil {
		return false, err
	}
	s.logger.Info("marked correct", "run_id", runID, "book_input_id", in.ID, "key", key)
	return true, nil
}

// ParseCorrectValue maps a manually entered value: the sentinel "empty"
// becomes Empty, blank input becomes Unknown, anything else is text.
func ParseCorrectValue(raw string) fields.Value {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return fields.Unknown
	case fields.EmptySentinel:
		return fields.Empty
	}
	return fields.Text(raw)
}

// SetCorrectField sets one field of a book input's correct set from manual
// input. See ParseCorrectValue for how raw is interpreted.
func (s *Service) SetCorrectField(ctx context.Context, bookInputID, key, raw string) (fields.Set, error) {
	if _, ok := fields.Lookup(key); !ok {
		return fields.Set{}, fmt.Errorf("%w: %q", fields.ErrUnknownKey, key)
	}
	in, err := s.store.GetBookInput(ctx, bookInputID)
	if err != nil {
		return fields.Set{}, err
	}
	v := ParseCorrectValue(raw)
	if err := s.writeCorrect(ctx, in, key, v); err != nil {
		return fields.Set{}, err
	}
	return s.store.GetFieldSet(ctx, in.CorrectFieldsID)
}

// writeCorrect puts v under key in the input's correct set. The whole row
// is rewritten; last write wins.
func (s *Service) writeCorrect(ctx context.Context, in *store.BookInput, key string, v fields.Value) error {
	if in.CorrectFieldsID == "" {
		set := fields.NewSet()
		if err := set.Put(key, v); err != nil {
			return err
		}
		id, err := s.store.CreateFieldSet(ctx, set)
		if err != nil {
			return fmt.Errorf("create correct fields: %w", err)
		}
		in.CorrectFieldsID = id
		if err := s.store.UpdateBookInput(ctx, in); err != nil {
			return fmt.Errorf("link correct fields: %w", err)
		}
		return nil
	}

	set, err := s.store.GetFieldSet(ctx, in.CorrectFieldsID)
	if err != nil {
		return fmt.Errorf("load correct fields: %w", err)
	}
	if err := set.Put(key, v); err != nil {
		return err
	}
	if err := s.store.UpdateFieldSet(ctx, in.CorrectFieldsID, set); err != nil {
		return fmt.Errorf("update correct fields: %w", err)
	}
	return nil
}
