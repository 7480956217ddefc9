package memory

import "sync"

// Registry maps conversation ids to their memory contexts. Contexts are
// created lazily by GetOrCreate and live until explicitly evicted.
type Registry struct {
	mu         sync.RWMutex
	contexts   map[string]*Context
	maxEntries int
}

// NewRegistry creates an empty registry. maxEntries applies to every
// context it creates (<= 0 uses DefaultMaxEntries).
func NewRegistry(maxEntries int) *Registry {
	return &Registry{
		contexts:   make(map[string]*Context),
		maxEntries: maxEntries,
	}
}

// Get returns the context for the conversation, if one exists.
func (r *Registry) Get(conversationID string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[conversationID]
	return c, ok
}

// GetOrCreate returns the context for the conversation, creating it on
// first reference.
func (r *Registry) GetOrCreate(conversationID string) *Context {
	r.mu.RLock()
	c, ok := r.contexts[conversationID]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contexts[conversationID]; ok {
		return c
	}
	c = NewContext(conversationID, r.maxEntries)
	r.contexts[conversationID] = c
	return c
}

// Evict removes the conversation's context. Evicting an unknown id is a
// no-op.
func (r *Registry) Evict(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, conversationID)
}

// Len reports how many conversations are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
