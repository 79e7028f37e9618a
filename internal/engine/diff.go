package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
)

// resourceDiff is the per-resource outcome of comparing declarations to
// observed state, before the planner orders anything.
type resourceDiff struct {
	addr   string
	res    *ir.Resource      // nil when the resource is only in state
	prior  *ir.ResourceState // nil when the resource is only declared
	action ir.Action
	fields []ir.FieldDiff
}

// diff computes one action per resource identity present in the declarations
// or in observed state. Reference-valued attributes are deferred: their
// concrete values are unknown until the producer applies, so they never
// participate in the comparison.
func (e *Engine) diff(cfg *ir.Config, state *ir.State) ([]*resourceDiff, error) {
	diffs := make([]*resourceDiff, 0, len(cfg.Resources))
	declared := make(map[string]bool, len(cfg.Resources))

	for _, res := range cfg.Resources {
		addr := res.Addr()
		declared[addr] = true

		schema, err := e.registry.Schema(res.Kind)
		if err != nil {
			return nil, fmt.Errorf("cannot plan %s: %w", addr, err)
		}

		prior := state.Resource(addr)
		if prior == nil {
			diffs = append(diffs, &resourceDiff{
				addr:   addr,
				res:    res,
				action: ir.ActionCreate,
			})
			continue
		}

		fields := diffFields(prior.Attributes, res.Attributes, schema)
		action := ir.ActionNoOp
		if len(fields) > 0 {
			action = ir.ActionUpdate
			for _, f := range fields {
				if f.ForcesReplacement {
					action = ir.ActionReplace
					break
				}
			}
		}

		if res.Lifecycle != nil && res.Lifecycle.PreventDestroy && action == ir.ActionReplace {
			return nil, fmt.Errorf("resource %s has preventDestroy set but a changed attribute forces replacement", addr)
		}

		diffs = append(diffs, &resourceDiff{
			addr:   addr,
			res:    res,
			prior:  prior,
			action: action,
			fields: fields,
		})
	}

	// Resources present only in state get destroyed.
	for _, prior := range state.Resources {
		if !declared[prior.Addr()] {
			diffs = append(diffs, &resourceDiff{
				addr:   prior.Addr(),
				prior:  prior,
				action: ir.ActionDestroy,
			})
		}
	}

	return diffs, nil
}

// diffFields compares top-level attributes of the declared tree against the
// last-applied snapshot. A declared value still carrying a Reference is
// skipped entirely. Changed fields the schema does not list as mutable force
// replacement; an in-place update the handler cannot honor is never planned.
func diffFields(prior, desired map[string]any, schema provider.Schema) []ir.FieldDiff {
	keys := make(map[string]bool, len(prior)+len(desired))
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var fields []ir.FieldDiff
	for _, k := range names {
		desiredVal, inDesired := desired[k]
		priorVal, inPrior := prior[k]

		if inDesired && ir.HasPendingRef(desiredVal) {
			continue
		}
		if inDesired && inPrior && attrEqual(priorVal, desiredVal) {
			continue
		}
		if !inDesired && !inPrior {
			continue
		}

		fields = append(fields, ir.FieldDiff{
			Field:             k,
			Before:            priorVal,
			After:             desiredVal,
			ForcesReplacement: !schema.IsMutable(k),
		})
	}
	return fields
}

// attrEqual compares attribute values structurally through their canonical
// JSON encoding. Numbers surviving a JSON round trip (int vs float64) still
// compare equal, while values that merely share a textual rendering (one
// list element "a b" vs two elements "a", "b") do not.
func attrEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
