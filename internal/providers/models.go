package providers

import (
	"context"
	"sync"
)

// Model is one entry of a provider's model catalogue. Prices are per token
// in USD, as strings, exactly as the provider reports them.
type Model struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ContextLength   int    `json:"context_length,omitempty"`
	PromptPrice     string `json:"prompt_price,omitempty"`
	CompletionPrice string `json:"completion_price,omitempty"`
}

// ModelLister fetches a model catalogue.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// ModelCache holds the model list for the life of the process. The first
// successful fetch is kept forever; failed fetches are not cached, so the
// next call tries again. Concurrent first calls wait on the same lock and
// only one of them fetches.
type ModelCache struct {
	mu     sync.Mutex
	loaded bool
	models []Model
}

// NewModelCache returns an empty cache.
func NewModelCache() *ModelCache {
	return &ModelCache{}
}

// Models returns the cached list, fetching it from lister on first use.
func (c *ModelCache) Models(ctx context.Context, lister ModelLister) ([]Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.models, nil
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	c.models = models
	c.loaded = true
	return c.models, nil
}

// Loaded reports whether a fetch has succeeded.
func (c *ModelCache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}
