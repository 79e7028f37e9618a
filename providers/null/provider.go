// Package null implements a handler with no real backing resource. It is
// useful for wiring arbitrary dependency edges into a graph and for
// exercising the engine in tests.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stackform-io/stackform/internal/provider"
)

// Handler tracks its "resources" in memory. Changing any trigger forces
// replacement, which is the whole point of a null resource.
type Handler struct {
	mu        sync.Mutex
	resources map[string]map[string]any
}

func New() *Handler {
	return &Handler{resources: make(map[string]map[string]any)}
}

// Register installs the null_resource kind.
func Register(reg *provider.Registry) error {
	return reg.Register("null_resource", New())
}

func (h *Handler) Schema() provider.Schema {
	return provider.Schema{
		ForcesReplacement: []string{"triggers"},
	}
}

func (h *Handler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := "null-" + uuid.NewString()
	h.resources[id] = attrs
	return id, map[string]any{"id": id, "triggers": attrs["triggers"]}, nil
}

func (h *Handler) Read(ctx context.Context, id string) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	attrs, ok := h.resources[id]
	if !ok {
		return nil, provider.NotFound(fmt.Errorf("null resource %s does not exist", id))
	}
	return attrs, nil
}

func (h *Handler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.resources[id]; !ok {
		return nil, provider.NotFound(fmt.Errorf("null resource %s does not exist", id))
	}
	h.resources[id] = attrs
	return map[string]any{"id": id, "triggers": attrs["triggers"]}, nil
}

func (h *Handler) Delete(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.resources, id)
	return nil
}
