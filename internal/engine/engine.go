// Package engine implements the reconciliation core: dependency graph
// construction, desired-vs-observed diffing, deterministic planning and
// plan execution against provider handlers.
package engine

import (
	"github.com/stackform-io/stackform/internal/provider"
)

const defaultParallelism = 10

// Engine orchestrates the plan/apply lifecycle of declared resources.
type Engine struct {
	registry *provider.Registry

	// Parallelism caps concurrent provider calls during apply. Items joined
	// by a dependency edge still execute in strict sequence.
	Parallelism int

	// Retry governs transient-error retries per provider call.
	Retry *RetryPolicy

	// Events, when set, receives progress notifications during Apply.
	Events func(ApplyEvent)
}

func New(registry *provider.Registry) *Engine {
	return &Engine{
		registry:    registry,
		Parallelism: defaultParallelism,
		Retry:       DefaultRetryPolicy(),
	}
}
