package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/promptlab/internal/fields"
)

type seqRun struct {
	Run
	seq int64
}

// MemoryStore is an in-process Store. Records are copied in and out, so
// callers never share state with the store.
type MemoryStore struct {
	mu  sync.RWMutex
	seq int64

	inputs    map[string]BookInput
	inputSeq  map[string]int64
	prompts   map[string]Prompt
	promptSeq map[string]int64
	runs      map[string]seqRun
	fieldSets map[string]fields.Set

	// Err, when set, is returned by every operation. Tests use it to
	// exercise store failure paths.
	Err error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inputs:    make(map[string]BookInput),
		inputSeq:  make(map[string]int64),
		prompts:   make(map[string]Prompt),
		promptSeq: make(map[string]int64),
		runs:      make(map[string]seqRun),
		fieldSets: make(map[string]fields.Set),
	}
}

func (m *MemoryStore) next() int64 {
	m.seq++
	return m.seq
}

func stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if created.IsZero() {
		*created = now()
	}
}

func (m *MemoryStore) CreateBookInput(_ context.Context, in *BookInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	stamp(&in.ID, &in.CreatedAt)
	m.inputs[in.ID] = *in
	m.inputSeq[in.ID] = m.next()
	return nil
}

func (m *MemoryStore) GetBookInput(_ context.Context, id string) (*BookInput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	in, ok := m.inputs[id]
	if !ok {
		return nil, fmt.Errorf("book input %s: %w", id, ErrNotFound)
	}
	return &in, nil
}

func (m *MemoryStore) ListBookInputs(_ context.Context) ([]BookInput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]BookInput, 0, len(m.inputs))
	for _, in := range m.inputs {
		out = append(out, in)
	}
	newestFirst(out,
		func(b BookInput) time.Time { return b.CreatedAt },
		func(b BookInput) int64 { return m.inputSeq[b.ID] })
	return out, nil
}

func (m *MemoryStore) UpdateBookInput(_ context.Context, in *BookInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	old, ok := m.inputs[in.ID]
	if !ok {
		return fmt.Errorf("book input %s: %w", in.ID, ErrNotFound)
	}
	in.CreatedAt = old.CreatedAt
	m.inputs[in.ID] = *in
	return nil
}

func (m *MemoryStore) CreatePrompt(_ context.Context, p *Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	stamp(&p.ID, &p.CreatedAt)
	m.prompts[p.ID] = *p
	m.promptSeq[p.ID] = m.next()
	return nil
}

func (m *MemoryStore) GetPrompt(_ context.Context, id string) (*Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) ListPrompts(_ context.Context) ([]Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		out = append(out, p)
	}
	newestFirst(out,
		func(p Prompt) time.Time { return p.CreatedAt },
		func(p Prompt) int64 { return m.promptSeq[p.ID] })
	return out, nil
}

func (m *MemoryStore) UpdatePrompt(_ context.Context, p *Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	old, ok := m.prompts[p.ID]
	if !ok {
		return fmt.Errorf("prompt %s: %w", p.ID, ErrNotFound)
	}
	p.CreatedAt = old.CreatedAt
	m.prompts[p.ID] = *p
	return nil
}

func (m *MemoryStore) CreateRun(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	stamp(&r.ID, &r.CreatedAt)
	m.runs[r.ID] = seqRun{Run: *r, seq: m.next()}
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return &r.Run, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, f RunFilter) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.listRuns(f), nil
}

func (m *MemoryStore) listRuns(f RunFilter) []Run {
	matched := make([]seqRun, 0)
	for _, r := range m.runs {
		if f.Matches(&r.Run) {
			matched = append(matched, r)
		}
	}
	newestFirst(matched,
		func(r seqRun) time.Time { return r.CreatedAt },
		func(r seqRun) int64 { return r.seq })
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	out := make([]Run, len(matched))
	for i, r := range matched {
		out[i] = r.Run
	}
	return out
}

func (m *MemoryStore) UpdateRun(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	old, ok := m.runs[r.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", r.ID, ErrNotFound)
	}
	r.CreatedAt = old.CreatedAt
	m.runs[r.ID] = seqRun{Run: *r, seq: old.seq}
	return nil
}

func (m *MemoryStore) LatestRun(_ context.Context, bookInputID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	runs := m.listRuns(RunFilter{BookInputID: bookInputID, Limit: 1})
	if len(runs) == 0 {
		return nil, fmt.Errorf("runs for book input %s: %w", bookInputID, ErrNotFound)
	}
	return &runs[0], nil
}

func (m *MemoryStore) CreateFieldSet(_ context.Context, s fields.Set) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	id := uuid.NewString()
	m.fieldSets[id] = s
	return id, nil
}

func (m *MemoryStore) GetFieldSet(_ context.Context, id string) (fields.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return fields.Set{}, m.Err
	}
	s, ok := m.fieldSets[id]
	if !ok {
		return fields.Set{}, fmt.Errorf("field set %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) UpdateFieldSet(_ context.Context, id string, s fields.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.fieldSets[id]; !ok {
		return fmt.Errorf("field set %s: %w", id, ErrNotFound)
	}
	m.fieldSets[id] = s
	return nil
}

// FieldSetCount returns the number of stored field sets.
func (m *MemoryStore) FieldSetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fieldSets)
}

func (m *MemoryStore) Close() error { return nil }
