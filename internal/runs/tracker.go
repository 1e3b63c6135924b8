package runs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tracker maps in-flight invocation ids to their cancel functions.
type Tracker struct {
	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]context.CancelCauseFunc)}
}

// Start registers id and returns a context that Cancel(id) ends. done must
// be called when the invocation finishes. An id that is still running is
// rejected with ErrInvocationActive.
func (t *Tracker) Start(ctx context.Context, id string) (runCtx context.Context, done func(), err error) {
	t.mu.Lock()
	if _, ok := t.active[id]; ok {
		t.mu.Unlock()
		return nil, nil, fmt.Errorf("invocation %s: %w", id, ErrInvocationActive)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	t.active[id] = cancel
	t.mu.Unlock()

	return runCtx, func() {
		t.mu.Lock()
		delete(t.active, id)
		t.mu.Unlock()
		cancel(nil)
	}, nil
}

// Cancel stops the invocation with the given id. It reports false when no
// such invocation is running.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	cancel, ok := t.active[id]
	t.mu.Unlock()
	if ok {
		cancel(ErrCancelled)
	}
	return ok
}

// Active returns the ids of in-flight invocations, sorted.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
