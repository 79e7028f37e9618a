package ir

// Config is the top-level declaration set consumed by one apply cycle.
type Config struct {
	Resources []*Resource        `pkl:"resources"`
	Outputs   map[string]*Output `pkl:"outputs"`
}
