package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/logging"
	"github.com/stackform-io/stackform/internal/provider"
)

// StateStore is the slice of the state layer the executor needs: a
// consistent snapshot to resolve references against, and per-item commits
// so every completed provider call is durable before the next one starts.
type StateStore interface {
	Snapshot() *ir.State
	Commit(ctx context.Context, res *ir.ResourceState) error
	Remove(ctx context.Context, addr string) error
	FinalizeRun(ctx context.Context, outputs map[string]*ir.OutputState) error
}

// ItemStatus is the terminal disposition of one plan item after a run.
type ItemStatus string

const (
	StatusSucceeded    ItemStatus = "succeeded"
	StatusFailed       ItemStatus = "failed"
	StatusNotAttempted ItemStatus = "not attempted"
)

// ItemResult records what happened to one plan item.
type ItemResult struct {
	Addr     string
	Action   ir.Action
	Status   ItemStatus
	Duration time.Duration
	Err      error
}

// ApplyReport summarizes a run: one result per plan item, in plan order,
// plus the resolved outputs when the run completed.
type ApplyReport struct {
	Items   []*ItemResult
	Outputs map[string]*ir.OutputState
}

func (r *ApplyReport) Failed() []*ItemResult {
	var out []*ItemResult
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			out = append(out, it)
		}
	}
	return out
}

// ApplyEvent is emitted as items start and finish, for progress rendering.
type ApplyEvent struct {
	Addr     string
	Action   ir.Action
	Status   ItemStatus
	Started  bool
	Duration time.Duration
	Err      error
}

// Apply executes the plan. Items without a dependency path between them run
// concurrently up to Parallelism; items joined by an edge run in strict
// sequence. Each item's state change commits before any dependent starts.
//
// The first permanent failure stops new items from starting; in-flight items
// run to completion and commit. Cancelling ctx behaves the same way: no new
// provider call begins, started calls finish.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan, store StateStore) (*ApplyReport, error) {
	initial := store.Snapshot()

	byKey := make(map[string]*ir.PlanItem, len(plan.Items))
	for _, item := range plan.Items {
		byKey[item.Key()] = item
	}

	waiting := make(map[string]int, len(plan.Items))
	dependents := make(map[string][]string)
	for _, item := range plan.Items {
		key := item.Key()
		waiting[key] = 0
		for _, dep := range item.DependsOn {
			if _, ok := byKey[dep]; ok {
				waiting[key]++
				dependents[dep] = append(dependents[dep], key)
			}
		}
	}

	parallelism := e.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu      sync.Mutex
		cond    = sync.NewCond(&mu)
		running int
		failed  bool
		started = make(map[string]bool, len(plan.Items))
		results = make(map[string]*ItemResult, len(plan.Items))
	)

	finish := func(item *ir.PlanItem, res *ItemResult) {
		mu.Lock()
		defer mu.Unlock()
		running--
		results[item.Key()] = res
		if res.Err != nil {
			failed = true
		} else {
			for _, dep := range dependents[item.Key()] {
				waiting[dep]--
			}
		}
		cond.Broadcast()
	}

	mu.Lock()
	for {
		if failed || ctx.Err() != nil {
			if running == 0 {
				break
			}
			cond.Wait()
			continue
		}

		var next *ir.PlanItem
		allDone := true
		for _, item := range plan.Items {
			key := item.Key()
			if started[key] {
				continue
			}
			allDone = false
			if waiting[key] == 0 {
				next = item
				break
			}
		}

		if allDone && running == 0 {
			break
		}
		if next == nil || running >= parallelism {
			cond.Wait()
			continue
		}

		key := next.Key()
		started[key] = true

		if next.Action == ir.ActionNoOp {
			results[key] = &ItemResult{Addr: next.Addr, Action: ir.ActionNoOp, Status: StatusSucceeded}
			for _, dep := range dependents[key] {
				waiting[dep]--
			}
			continue
		}

		running++
		go func(item *ir.PlanItem) {
			res := e.runItem(ctx, item, store, initial)
			finish(item, res)
		}(next)
	}
	mu.Unlock()

	report := &ApplyReport{}
	var firstErr error
	for _, item := range plan.Items {
		res, ok := results[item.Key()]
		if !ok {
			res = &ItemResult{Addr: item.Addr, Action: item.Action, Status: StatusNotAttempted}
		}
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("applying %s: %w", res.Addr, res.Err)
		}
		report.Items = append(report.Items, res)
	}

	if firstErr != nil {
		return report, firstErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	outputs, err := ResolveOutputs(plan.Outputs, store.Snapshot())
	if err != nil {
		return report, err
	}
	report.Outputs = outputs
	if err := store.FinalizeRun(ctx, outputs); err != nil {
		return report, fmt.Errorf("finalizing state: %w", err)
	}
	return report, nil
}

// runItem executes one provider call with retries and commits the result.
// The provider call runs under its own timeout, detached from the run
// context so cancellation never abandons a call already in flight.
func (e *Engine) runItem(ctx context.Context, item *ir.PlanItem, store StateStore, initial *ir.State) *ItemResult {
	start := time.Now()
	e.emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Started: true})
	logging.Debug("applying item", "addr", item.Addr, "action", item.Action)

	err := RetryWithBackoff(ctx, e.Retry, func() error {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()
		return e.execute(opCtx, item, store, initial)
	})

	res := &ItemResult{
		Addr:     item.Addr,
		Action:   item.Action,
		Status:   StatusSucceeded,
		Duration: time.Since(start),
		Err:      err,
	}
	if err != nil {
		res.Status = StatusFailed
		logging.Error("item failed", "addr", item.Addr, "action", item.Action, "error", err)
	}
	e.emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: res.Status, Duration: res.Duration, Err: err})
	return res
}

func (e *Engine) execute(ctx context.Context, item *ir.PlanItem, store StateStore, initial *ir.State) error {
	handler, err := e.registry.Get(item.Kind)
	if err != nil {
		return err
	}

	switch item.Action {
	case ir.ActionCreate:
		attrs, err := e.resolveAttributes(item.Attributes, store.Snapshot())
		if err != nil {
			return err
		}
		id, outputs, err := handler.Create(ctx, attrs)
		if err != nil {
			return err
		}
		return store.Commit(ctx, &ir.ResourceState{
			Kind:         item.Kind,
			Name:         item.Name,
			ID:           id,
			Attributes:   attrs,
			Outputs:      outputs,
			Dependencies: item.Producers,
		})

	case ir.ActionUpdate:
		prior := initial.Resource(item.Addr)
		if prior == nil {
			return fmt.Errorf("no state for %s", item.Addr)
		}
		attrs, err := e.resolveAttributes(item.Attributes, store.Snapshot())
		if err != nil {
			return err
		}
		outputs, err := handler.Update(ctx, prior.ID, attrs)
		if err != nil {
			return err
		}
		return store.Commit(ctx, &ir.ResourceState{
			Kind:         item.Kind,
			Name:         item.Name,
			ID:           prior.ID,
			Attributes:   attrs,
			Outputs:      outputs,
			Dependencies: item.Producers,
		})

	case ir.ActionDestroy:
		prior := initial.Resource(item.Addr)
		if prior == nil {
			return nil
		}
		if err := handler.Delete(ctx, prior.ID); err != nil && !provider.IsNotFound(err) {
			return err
		}
		// A create-before-destroy replacement has already committed the
		// successor under the same address; the state entry stays.
		if item.Replacing && dependsOnApply(item) {
			return nil
		}
		return store.Remove(ctx, item.Addr)

	default:
		return fmt.Errorf("unexpected plan action %q for %s", item.Action, item.Addr)
	}
}

func dependsOnApply(item *ir.PlanItem) bool {
	for _, dep := range item.DependsOn {
		if dep == "apply/"+item.Addr {
			return true
		}
	}
	return false
}

// resolveAttributes substitutes every pending Reference in the attribute
// tree with the producer's committed value.
func (e *Engine) resolveAttributes(attrs map[string]any, snap *ir.State) (map[string]any, error) {
	resolved, err := resolveValue(attrs, snap)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

func resolveValue(v any, snap *ir.State) (any, error) {
	switch t := v.(type) {
	case ir.Reference:
		return resolveReference(t, snap)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			rv, err := resolveValue(val, snap)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			rv, err := resolveValue(val, snap)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveReference(ref ir.Reference, snap *ir.State) (any, error) {
	rs := snap.Resource(ref.Target)
	if rs == nil {
		return nil, fmt.Errorf("reference to %s: resource has no committed state", ref.Target)
	}
	if val, ok := ir.AttrPath(rs.Outputs, ref.Path); ok {
		return val, nil
	}
	if ref.Path == "id" {
		return rs.ID, nil
	}
	if val, ok := ir.AttrPath(rs.Attributes, ref.Path); ok {
		return val, nil
	}
	return nil, fmt.Errorf("reference to %s: no attribute or output at %q", ref.Target, ref.Path)
}

func (e *Engine) emit(ev ApplyEvent) {
	if e.Events != nil {
		e.Events(ev)
	}
}
