package providers

import "sync"

// Holder holds the current LLM client so it can be swapped when the
// configuration changes.
type Holder struct {
	mu     sync.RWMutex
	client LLMClient
}

// NewHolder returns a holder for client, which may be nil.
func NewHolder(client LLMClient) *Holder {
	return &Holder{client: client}
}

// Client returns the current client, or nil if none is configured.
func (h *Holder) Client() LLMClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// Set replaces the current client.
func (h *Holder) Set(client LLMClient) {
	h.mu.Lock()
	h.client = client
	h.mu.Unlock()
}
