package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
)

func TestPlan_CreateAll(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			box("vpc", nil),
			box("subnet", map[string]any{"vpcId": ref("box.vpc", "id")}),
			box("instance", map[string]any{"subnetId": ref("box.subnet", "id")}),
		},
	}

	plan, err := eng.Plan(context.Background(), cfg, &ir.State{Version: 1})
	require.NoError(t, err)

	keys := itemKeys(plan.Items)
	assert.Equal(t, []string{"apply/box.vpc", "apply/box.subnet", "apply/box.instance"}, keys)
	for _, item := range plan.Items {
		assert.Equal(t, ir.ActionCreate, item.Action)
	}
	assert.Contains(t, plan.Items[1].DependsOn, "apply/box.vpc")
	assert.Equal(t, 3, plan.Summary.Create)
	assert.True(t, plan.Changes())
}

func TestPlan_Idempotent(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			box("a", map[string]any{"size": "small"}),
			box("b", map[string]any{"aId": ref("box.a", "id")}),
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			boxState("a", map[string]any{"size": "small"}),
			boxState("b", map[string]any{"aId": "id-a"}, "box.a"),
		},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Items, 2)
	for _, item := range plan.Items {
		assert.Equal(t, ir.ActionNoOp, item.Action)
	}
	assert.False(t, plan.Changes())
	assert.Equal(t, 2, plan.Summary.NoOp)
}

func TestPlan_UpdateMutableField(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", map[string]any{"mutable": "new"})},
	}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"mutable": "old"})},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	item := plan.Items[0]
	assert.Equal(t, ir.ActionUpdate, item.Action)
	require.Len(t, item.Diff, 1)
	assert.Equal(t, "mutable", item.Diff[0].Field)
	assert.Equal(t, "old", item.Diff[0].Before)
	assert.Equal(t, "new", item.Diff[0].After)
	assert.False(t, item.Diff[0].ForcesReplacement)
}

func TestPlan_ListElementChangeIsNotNoOp(t *testing.T) {
	eng, _ := newTestEngine()

	// One element "a b" and two elements "a", "b" share a textual rendering
	// but are different values; the comparison must be structural.
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", map[string]any{"mutable": []any{"a", "b"}})},
	}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"mutable": []any{"a b"}})},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, ir.ActionUpdate, plan.Items[0].Action)
	assert.Equal(t, 1, plan.Summary.Update)
	assert.Equal(t, 0, plan.Summary.NoOp)
	require.Len(t, plan.Items[0].Diff, 1)
	assert.Equal(t, "mutable", plan.Items[0].Diff[0].Field)
}

func TestPlan_NumbersCompareAcrossJSONRoundTrip(t *testing.T) {
	eng, _ := newTestEngine()

	// State attributes come back from JSON as float64; a declared int of
	// the same value is not a change.
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", map[string]any{"mutable": 8080})},
	}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"mutable": float64(8080)})},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)
	assert.False(t, plan.Changes())
}

func TestPlan_ReplaceImmutableField(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", map[string]any{"pinned": "v2"})},
	}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"pinned": "v1"})},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)

	keys := itemKeys(plan.Items)
	require.Equal(t, []string{"destroy/box.a", "apply/box.a"}, keys)

	destroy, create := plan.Items[0], plan.Items[1]
	assert.Equal(t, ir.ActionDestroy, destroy.Action)
	assert.True(t, destroy.Replacing)
	assert.Equal(t, ir.ActionCreate, create.Action)
	assert.True(t, create.Replacing)
	assert.Contains(t, create.DependsOn, "destroy/box.a")

	// Replace counts once in the summary despite expanding to two items.
	assert.Equal(t, 1, plan.Summary.Replace)
	assert.Equal(t, 0, plan.Summary.Create)
	assert.Equal(t, 0, plan.Summary.Destroy)
}

func TestPlan_ReplaceCreateBeforeDestroy(t *testing.T) {
	eng, _ := newTestEngine()
	res := box("a", map[string]any{"pinned": "v2"})
	res.Lifecycle = &ir.Lifecycle{CreateBeforeDestroy: true}
	cfg := &ir.Config{Resources: []*ir.Resource{res}}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"pinned": "v1"})},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)

	keys := itemKeys(plan.Items)
	require.Equal(t, []string{"apply/box.a", "destroy/box.a"}, keys)
	assert.Contains(t, plan.Items[1].DependsOn, "apply/box.a")
}

func TestPlan_DestroyRemovedInDependentOrder(t *testing.T) {
	eng, _ := newTestEngine()

	// Nothing declared; state still tracks a producer and its dependent.
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			boxState("producer", nil),
			boxState("dependent", nil, "box.producer"),
		},
	}

	plan, err := eng.Plan(context.Background(), &ir.Config{}, state)
	require.NoError(t, err)

	keys := itemKeys(plan.Items)
	require.Equal(t, []string{"destroy/box.dependent", "destroy/box.producer"}, keys)
	assert.Equal(t, 2, plan.Summary.Destroy)
}

func TestPlan_DestroysBeforeCreates(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{Resources: []*ir.Resource{box("new", nil)}}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("old", nil)},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)

	keys := itemKeys(plan.Items)
	assert.Less(t, indexOf(keys, "destroy/box.old"), indexOf(keys, "apply/box.new"))
}

func TestPlan_PreventDestroyBlocksReplacement(t *testing.T) {
	eng, _ := newTestEngine()
	res := box("a", map[string]any{"pinned": "v2"})
	res.Lifecycle = &ir.Lifecycle{PreventDestroy: true}
	cfg := &ir.Config{Resources: []*ir.Resource{res}}
	state := &ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"pinned": "v1"})},
	}

	_, err := eng.Plan(context.Background(), cfg, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preventDestroy")
}

func TestPlan_ReferenceValuesDeferred(t *testing.T) {
	eng, _ := newTestEngine()

	// The declared attribute is still a reference; the prior state holds the
	// concrete value. The comparison must not flag a change.
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			box("a", nil),
			box("b", map[string]any{"aId": ref("box.a", "id")}),
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			boxState("a", nil),
			boxState("b", map[string]any{"aId": "id-a"}, "box.a"),
		},
	}

	plan, err := eng.Plan(context.Background(), cfg, state)
	require.NoError(t, err)
	assert.False(t, plan.Changes())
}

func TestPlan_OutputReferenceMustResolve(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", nil)},
		Outputs: map[string]*ir.Output{
			"broken": {Value: ref("box.missing", "id")},
		},
	}

	_, err := eng.Plan(context.Background(), cfg, &ir.State{Version: 1})
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "output.broken", unresolved.From)
}

func TestPlan_UnknownKind(t *testing.T) {
	eng, _ := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{{Kind: "mystery", Name: "x", Attributes: map[string]any{}}},
	}

	_, err := eng.Plan(context.Background(), cfg, &ir.State{Version: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}
