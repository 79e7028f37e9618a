package ir

// State is the durable record of every resource the engine has applied.
// It is the only entity whose lifecycle spans runs; convergence on the next
// run is driven entirely by comparing declarations against it.
type State struct {
	Version   int                     `json:"version"`
	Serial    int                     `json:"serial"`
	Lineage   string                  `json:"lineage"`
	Resources []*ResourceState        `json:"resources"`
	Outputs   map[string]*OutputState `json:"outputs,omitempty"`
}

// ResourceState is the last-known observed state of one resource: the
// provider-assigned remote id plus the attribute snapshot the provider
// returned when the resource was last applied.
type ResourceState struct {
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	ID           string         `json:"id"`
	Attributes   map[string]any `json:"attributes"`             // as declared, references resolved
	Outputs      map[string]any `json:"outputs"`                // as returned by the provider
	Dependencies []string       `json:"dependencies,omitempty"` // producer addresses at apply time
}

// Addr returns the state entry's address ("kind.name").
func (r *ResourceState) Addr() string {
	return r.Kind + "." + r.Name
}

// OutputState is a resolved output value persisted with the state.
type OutputState struct {
	Value     any  `json:"value"`
	Sensitive bool `json:"sensitive,omitempty"`
}

// Resource returns the state entry for addr, or nil.
func (s *State) Resource(addr string) *ResourceState {
	for _, r := range s.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}
