package ir

// Action is the reconciliation verb computed for one resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace" // expanded into destroy+create plan items
	ActionDestroy Action = "destroy"
	ActionNoOp    Action = "noop"
)

// Plan is an ordered sequence of items satisfying dependency order. It is
// ephemeral: owned by a single apply run and recomputed every cycle.
type Plan struct {
	CreatedAt string             `json:"createdAt"`
	Items     []*PlanItem        `json:"items"`
	Summary   *PlanSummary       `json:"summary"`
	Outputs   map[string]*Output `json:"outputs,omitempty"`
}

// PlanItem is one action bound to a resource. Attribute values that refer to
// another resource's outputs are still pending References here; the executor
// substitutes them once the producer's item has committed.
type PlanItem struct {
	Addr       string         `json:"addr"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Action     Action         `json:"action"`
	Attributes map[string]any `json:"attributes,omitempty"` // desired, for create/update
	Replacing  bool           `json:"replacing,omitempty"`  // part of an expanded replace
	DependsOn  []string       `json:"dependsOn,omitempty"`  // keys of items that must commit first
	Producers  []string       `json:"producers,omitempty"`  // graph dependencies, recorded into state
	Diff       []FieldDiff    `json:"diff,omitempty"`
}

// Key identifies an item inside a plan. A replaced resource contributes two
// items with the same address but distinct keys.
func (i *PlanItem) Key() string {
	if i.Action == ActionDestroy {
		return "destroy/" + i.Addr
	}
	return "apply/" + i.Addr
}

// FieldDiff records one attribute-level difference behind an Update or
// Replace decision.
type FieldDiff struct {
	Field             string `json:"field"`
	Before            any    `json:"before,omitempty"`
	After             any    `json:"after,omitempty"`
	ForcesReplacement bool   `json:"forcesReplacement,omitempty"`
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Destroy int `json:"destroy"`
	NoOp    int `json:"noop"`
}

// Changes reports whether the plan contains anything besides no-ops.
func (p *Plan) Changes() bool {
	for _, item := range p.Items {
		if item.Action != ActionNoOp {
			return true
		}
	}
	return false
}
