package ir

import "fmt"

// Resource is a single declared resource: an identity plus an attribute tree.
// Attribute values are literals (string, bool, number, nested map/list) or
// Reference values pointing at another resource's output attribute.
// A Resource is immutable once parsed for a given apply cycle.
type Resource struct {
	Kind       string         `pkl:"kind"` // e.g. "aws_vpc"
	Name       string         `pkl:"name"`
	Lifecycle  *Lifecycle     `pkl:"lifecycle"`
	DependsOn  []string       `pkl:"dependsOn"`
	Attributes map[string]any `pkl:"attributes"`
}

// Addr returns the resource address ("kind.name"), the identity used for
// graph nodes, state entries and plan items.
func (r *Resource) Addr() string {
	return fmt.Sprintf("%s.%s", r.Kind, r.Name)
}

type Lifecycle struct {
	// CreateBeforeDestroy orders a replacement's Create ahead of the Destroy
	// of the old instance instead of the default destroy-first.
	CreateBeforeDestroy bool `pkl:"createBeforeDestroy"`
	PreventDestroy      bool `pkl:"preventDestroy"`
}

// Output declares a named value resolved against final resource attributes
// after a successful apply. Sensitive outputs are kept in the structured
// result but redacted from any human-readable rendering.
type Output struct {
	Value     any  `pkl:"value"` // literal or Reference
	Sensitive bool `pkl:"sensitive"`
}
