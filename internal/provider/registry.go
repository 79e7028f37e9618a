package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the lookup table from resource kind to Handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a kind. Registering the same kind twice is a
// programming error.
func (r *Registry) Register(kind string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for kind %q", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Get returns the handler for a kind.
func (r *Registry) Get(kind string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for kind %q", kind)
	}
	return h, nil
}

// Schema returns the schema for a kind.
func (r *Registry) Schema(kind string) (Schema, error) {
	h, err := r.Get(kind)
	if err != nil {
		return Schema{}, err
	}
	return h.Schema(), nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
