package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/logging"
)

// Plan computes the execution plan reconciling the declarations against
// observed state. Plan computation is single-threaded and deterministic:
// the same declarations and state always produce the same plan, and no
// remote call is made. Failures here are side-effect free.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	logging.Debug("planning", "resources", len(cfg.Resources), "state_resources", len(state.Resources))

	for _, res := range cfg.Resources {
		res.Attributes = ir.ParseAttributes(res.Attributes).(map[string]any)
	}

	graph, err := BuildGraph(cfg.Resources)
	if err != nil {
		return nil, err
	}

	if err := validateOutputs(cfg, graph); err != nil {
		return nil, err
	}

	diffs, err := e.diff(cfg, state)
	if err != nil {
		return nil, err
	}

	diffByAddr := make(map[string]*resourceDiff, len(diffs))
	for _, d := range diffs {
		diffByAddr[d.addr] = d
	}

	items, ranks := buildItems(graph, state, diffs, diffByAddr)

	ordered, err := orderItems(items, ranks)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Items:     ordered,
		Summary:   summarize(diffs),
		Outputs:   cfg.Outputs,
	}
	return plan, nil
}

// buildItems expands per-resource diffs into plan items with explicit
// ordering edges. A Replace becomes a destroy+create pair: destroy first by
// default, create first when the resource is marked createBeforeDestroy.
func buildItems(graph *Graph, state *ir.State, diffs []*resourceDiff, diffByAddr map[string]*resourceDiff) ([]*ir.PlanItem, map[string]float64) {
	var items []*ir.PlanItem
	ranks := make(map[string]float64)

	add := func(item *ir.PlanItem, rank float64) {
		items = append(items, item)
		ranks[item.Key()] = rank
	}

	// Pure destroys come first, dependents before their producers, using the
	// dependency addresses recorded in state at apply time.
	for i, addr := range destroyOrder(state, diffByAddr) {
		d := diffByAddr[addr]
		item := &ir.PlanItem{
			Addr:   addr,
			Kind:   d.prior.Kind,
			Name:   d.prior.Name,
			Action: ir.ActionDestroy,
		}
		for _, other := range state.Resources {
			dd, ok := diffByAddr[other.Addr()]
			if !ok || dd.action != ir.ActionDestroy || dd.res != nil {
				continue
			}
			for _, dep := range other.Dependencies {
				if dep == addr && other.Addr() != addr {
					item.DependsOn = append(item.DependsOn, "destroy/"+other.Addr())
				}
			}
		}
		add(item, float64(i)-1e9)
	}

	// Creates, updates and replacements follow in creation order.
	for declIdx, addr := range graph.CreationOrder() {
		d := diffByAddr[addr]
		base := float64(declIdx) * 10

		producers := graph.Dependencies(addr)
		var edges []string
		for _, p := range producers {
			if pd := diffByAddr[p]; pd != nil && pd.action != ir.ActionNoOp && pd.action != ir.ActionDestroy {
				edges = append(edges, "apply/"+p)
			}
		}

		switch d.action {
		case ir.ActionNoOp:
			add(&ir.PlanItem{
				Addr:      addr,
				Kind:      d.res.Kind,
				Name:      d.res.Name,
				Action:    ir.ActionNoOp,
				Producers: producers,
			}, base)

		case ir.ActionCreate, ir.ActionUpdate:
			add(&ir.PlanItem{
				Addr:       addr,
				Kind:       d.res.Kind,
				Name:       d.res.Name,
				Action:     d.action,
				Attributes: d.res.Attributes,
				Diff:       d.fields,
				DependsOn:  edges,
				Producers:  producers,
			}, base)

		case ir.ActionReplace:
			destroy := &ir.PlanItem{
				Addr:      addr,
				Kind:      d.res.Kind,
				Name:      d.res.Name,
				Action:    ir.ActionDestroy,
				Replacing: true,
			}
			create := &ir.PlanItem{
				Addr:       addr,
				Kind:       d.res.Kind,
				Name:       d.res.Name,
				Action:     ir.ActionCreate,
				Attributes: d.res.Attributes,
				Diff:       d.fields,
				Replacing:  true,
				DependsOn:  edges,
				Producers:  producers,
			}
			if d.res.Lifecycle != nil && d.res.Lifecycle.CreateBeforeDestroy {
				// The old instance is torn down only after the new one
				// succeeds.
				destroy.DependsOn = append(destroy.DependsOn, create.Key())
				add(create, base)
				add(destroy, base+1)
			} else {
				create.DependsOn = append(create.DependsOn, destroy.Key())
				add(destroy, base-1)
				add(create, base)
			}
		}
	}

	return items, ranks
}

// destroyOrder sequences resources that are only in state so that every
// dependent is destroyed before the resources it depends on.
func destroyOrder(state *ir.State, diffByAddr map[string]*resourceDiff) []string {
	destroyed := make(map[string]bool)
	for _, d := range diffByAddr {
		if d.action == ir.ActionDestroy && d.res == nil {
			destroyed[d.addr] = true
		}
	}

	// dependents[r] counts destroyed resources still waiting on r.
	dependents := make(map[string]int, len(destroyed))
	for addr := range destroyed {
		dependents[addr] = 0
	}
	for _, res := range state.Resources {
		if !destroyed[res.Addr()] {
			continue
		}
		for _, dep := range res.Dependencies {
			if destroyed[dep] && dep != res.Addr() {
				dependents[dep]++
			}
		}
	}

	var order []string
	remaining := len(destroyed)
	for remaining > 0 {
		progressed := false
		for _, res := range state.Resources {
			addr := res.Addr()
			if !destroyed[addr] || dependents[addr] != 0 {
				continue
			}
			order = append(order, addr)
			destroyed[addr] = false
			remaining--
			progressed = true
			for _, dep := range res.Dependencies {
				if destroyed[dep] {
					dependents[dep]--
				}
			}
		}
		if !progressed {
			// State dependency records cannot form a cycle under normal
			// operation; fall back to state order rather than wedge.
			for _, res := range state.Resources {
				if destroyed[res.Addr()] {
					order = append(order, res.Addr())
				}
			}
			break
		}
	}
	return order
}

// orderItems produces the linear plan: a priority-based topological sort
// over the item-level edges. A stall means the ordering constraints
// contradict each other, which a valid DAG cannot produce.
func orderItems(items []*ir.PlanItem, ranks map[string]float64) ([]*ir.PlanItem, error) {
	byKey := make(map[string]*ir.PlanItem, len(items))
	for _, item := range items {
		byKey[item.Key()] = item
	}

	waiting := make(map[string]int, len(items))
	dependents := make(map[string][]string)
	for _, item := range items {
		key := item.Key()
		waiting[key] = 0
		for _, dep := range item.DependsOn {
			if _, ok := byKey[dep]; ok {
				waiting[key]++
				dependents[dep] = append(dependents[dep], key)
			}
		}
	}

	var ready []string
	for key, n := range waiting {
		if n == 0 {
			ready = append(ready, key)
		}
	}

	ordered := make([]*ir.PlanItem, 0, len(items))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ranks[ready[i]] < ranks[ready[j]] })
		key := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byKey[key])

		for _, dep := range dependents[key] {
			waiting[dep]--
			if waiting[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(items) {
		var stuck []string
		for key, n := range waiting {
			if n > 0 {
				stuck = append(stuck, key)
			}
		}
		sort.Strings(stuck)
		return nil, &PlanConflictError{Detail: fmt.Sprintf("unorderable items: %v", stuck)}
	}

	return ordered, nil
}

// validateOutputs checks every output reference against the declaration set
// before anything is planned.
func validateOutputs(cfg *ir.Config, graph *Graph) error {
	for name, out := range cfg.Outputs {
		out.Value = ir.ParseAttributes(out.Value)
		for _, ref := range ir.References(out.Value) {
			if _, ok := graph.nodes[ref.Target]; !ok {
				return &UnresolvedReferenceError{From: "output." + name, Target: ref.Target}
			}
		}
	}
	return nil
}

func summarize(diffs []*resourceDiff) *ir.PlanSummary {
	s := &ir.PlanSummary{}
	for _, d := range diffs {
		switch d.action {
		case ir.ActionCreate:
			s.Create++
		case ir.ActionUpdate:
			s.Update++
		case ir.ActionReplace:
			s.Replace++
		case ir.ActionDestroy:
			s.Destroy++
		case ir.ActionNoOp:
			s.NoOp++
		}
	}
	return s
}
