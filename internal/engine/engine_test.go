package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
)

// fakeHandler is a scriptable in-memory handler for engine tests.
type fakeHandler struct {
	mu sync.Mutex

	schema provider.Schema

	createErrs []error // consumed one per Create call
	readErr    error
	updateErr  error
	deleteErr  error

	createCalls int
	updateCalls int
	deleteCalls int
	deleted     []string
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		schema: provider.Schema{
			Mutable:           []string{"mutable"},
			ForcesReplacement: []string{"pinned"},
		},
	}
}

func (f *fakeHandler) Schema() provider.Schema {
	return f.schema
}

func (f *fakeHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return "", nil, err
		}
	}
	name, _ := attrs["name"].(string)
	return "id-" + name, map[string]any{"id": "id-" + name, "value": "v-" + name}, nil
}

func (f *fakeHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return map[string]any{"id": id, "observed": true}, nil
}

func (f *fakeHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	name, _ := attrs["name"].(string)
	return map[string]any{"id": id, "value": "v-" + name}, nil
}

func (f *fakeHandler) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

// memStore is an in-memory StateStore recording commit order.
type memStore struct {
	mu        sync.Mutex
	state     *ir.State
	commits   []string
	removes   []string
	finalized bool
}

func newMemStore(initial *ir.State) *memStore {
	if initial == nil {
		initial = &ir.State{Version: 1, Lineage: "test"}
	}
	return &memStore{state: initial}
}

func (m *memStore) Snapshot() *ir.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(m.state)
	if err != nil {
		panic(err)
	}
	var copied ir.State
	if err := json.Unmarshal(data, &copied); err != nil {
		panic(err)
	}
	return &copied
}

func (m *memStore) Commit(ctx context.Context, res *ir.ResourceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, res.Addr())
	for i, existing := range m.state.Resources {
		if existing.Addr() == res.Addr() {
			m.state.Resources[i] = res
			return nil
		}
	}
	m.state.Resources = append(m.state.Resources, res)
	return nil
}

func (m *memStore) Remove(ctx context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes = append(m.removes, addr)
	for i, existing := range m.state.Resources {
		if existing.Addr() == addr {
			m.state.Resources = append(m.state.Resources[:i], m.state.Resources[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) FinalizeRun(ctx context.Context, outputs map[string]*ir.OutputState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
	m.state.Outputs = outputs
	m.state.Serial++
	return nil
}

// newTestEngine wires a fake handler under the "box" kind with a fast retry
// policy.
func newTestEngine() (*Engine, *fakeHandler) {
	handler := newFakeHandler()
	reg := provider.NewRegistry()
	if err := reg.Register("box", handler); err != nil {
		panic(err)
	}
	eng := New(reg)
	eng.Retry = &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return eng, handler
}

func box(name string, attrs map[string]any) *ir.Resource {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["name"] = name
	return &ir.Resource{Kind: "box", Name: name, Attributes: attrs}
}

func boxState(name string, attrs map[string]any, deps ...string) *ir.ResourceState {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["name"] = name
	return &ir.ResourceState{
		Kind:         "box",
		Name:         name,
		ID:           "id-" + name,
		Attributes:   attrs,
		Outputs:      map[string]any{"id": "id-" + name, "value": "v-" + name},
		Dependencies: deps,
	}
}

func itemKeys(items []*ir.PlanItem) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key()
	}
	return keys
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
