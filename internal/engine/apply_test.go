package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
)

func TestApply_CreateChainResolvesReferences(t *testing.T) {
	eng, handler := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			box("a", nil),
			box("b", map[string]any{"aValue": ref("box.a", "value")}),
		},
		Outputs: map[string]*ir.Output{
			"exposed": {Value: ref("box.a", "value")},
			"secret":  {Value: "hunter2", Sensitive: true},
		},
	}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	report, err := eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, 2, handler.createCalls)

	// The producer commits before its dependent starts.
	require.Equal(t, []string{"box.a", "box.b"}, store.commits)

	b := store.state.Resource("box.b")
	require.NotNil(t, b)
	assert.Equal(t, "v-a", b.Attributes["aValue"])
	assert.Equal(t, []string{"box.a"}, b.Dependencies)

	require.NotNil(t, report.Outputs)
	assert.Equal(t, "v-a", report.Outputs["exposed"].Value)
	assert.True(t, report.Outputs["secret"].Sensitive)
	assert.Equal(t, "hunter2", report.Outputs["secret"].Value)

	assert.True(t, store.finalized)
	assert.Equal(t, 1, store.state.Serial)
}

func TestApply_FailFastKeepsCommittedPrefix(t *testing.T) {
	eng, handler := newTestEngine()
	handler.createErrs = []error{nil, provider.Permanent(errors.New("quota exceeded"))}

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			box("a", nil),
			box("b", map[string]any{"aId": ref("box.a", "id")}),
			box("c", map[string]any{"bId": ref("box.b", "id")}),
		},
	}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	report, err := eng.Apply(context.Background(), plan, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "box.b")

	byAddr := make(map[string]*ItemResult)
	for _, item := range report.Items {
		byAddr[item.Addr] = item
	}
	assert.Equal(t, StatusSucceeded, byAddr["box.a"].Status)
	assert.Equal(t, StatusFailed, byAddr["box.b"].Status)
	assert.Equal(t, StatusNotAttempted, byAddr["box.c"].Status)

	// Only the successful item is in state; a fresh plan picks up the rest.
	assert.NotNil(t, store.state.Resource("box.a"))
	assert.Nil(t, store.state.Resource("box.b"))
	assert.False(t, store.finalized)

	replan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 2, replan.Summary.Create)
	assert.Equal(t, 1, replan.Summary.NoOp)
}

func TestApply_RetriesTransientErrors(t *testing.T) {
	eng, handler := newTestEngine()
	handler.createErrs = []error{
		provider.Transient(errors.New("throttled")),
		provider.Transient(errors.New("throttled")),
		nil,
	}

	cfg := &ir.Config{Resources: []*ir.Resource{box("a", nil)}}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, 3, handler.createCalls)
	assert.NotNil(t, store.state.Resource("box.a"))
}

func TestApply_TransientEscalatesAfterMaxRetries(t *testing.T) {
	eng, handler := newTestEngine()
	handler.createErrs = []error{
		provider.Transient(errors.New("throttled")),
		provider.Transient(errors.New("throttled")),
		provider.Transient(errors.New("throttled")),
	}

	cfg := &ir.Config{Resources: []*ir.Resource{box("a", nil)}}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), plan, store)
	require.Error(t, err)
	assert.Equal(t, provider.ClassPermanent, provider.ClassOf(err))
	assert.Equal(t, 3, handler.createCalls)
}

func TestApply_UpdateUsesPriorID(t *testing.T) {
	eng, handler := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", map[string]any{"mutable": "new"})},
	}
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"mutable": "old"})},
	})

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, 1, handler.updateCalls)

	a := store.state.Resource("box.a")
	require.NotNil(t, a)
	assert.Equal(t, "id-a", a.ID)
	assert.Equal(t, "new", a.Attributes["mutable"])
}

func TestApply_ReplaceDestroyBeforeCreate(t *testing.T) {
	eng, handler := newTestEngine()
	cfg := &ir.Config{
		Resources: []*ir.Resource{box("a", map[string]any{"pinned": "v2"})},
	}
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"pinned": "v1"})},
	})

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"id-a"}, handler.deleted)
	assert.Equal(t, 1, handler.createCalls)
	assert.Equal(t, []string{"box.a"}, store.removes)

	a := store.state.Resource("box.a")
	require.NotNil(t, a)
	assert.Equal(t, "v2", a.Attributes["pinned"])
}

func TestApply_ReplaceCreateBeforeDestroyKeepsState(t *testing.T) {
	eng, handler := newTestEngine()
	res := box("a", map[string]any{"pinned": "v2"})
	res.Lifecycle = &ir.Lifecycle{CreateBeforeDestroy: true}
	cfg := &ir.Config{Resources: []*ir.Resource{res}}
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"pinned": "v1"})},
	})

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, 1, handler.createCalls)
	assert.Equal(t, 1, handler.deleteCalls)

	// The successor record committed by the create must survive the destroy
	// of the old instance.
	assert.Empty(t, store.removes)
	require.NotNil(t, store.state.Resource("box.a"))
	assert.Equal(t, "v2", store.state.Resource("box.a").Attributes["pinned"])
}

func TestApply_DestroyMissingRemoteSucceeds(t *testing.T) {
	eng, handler := newTestEngine()
	handler.deleteErr = provider.NotFound(errors.New("already gone"))

	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("gone", nil)},
	})

	plan, err := eng.Plan(context.Background(), &ir.Config{}, store.Snapshot())
	require.NoError(t, err)

	report, err := eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, report.Items[0].Status)
	assert.Empty(t, store.state.Resources)
}

func TestApply_CancelledContextStartsNothing(t *testing.T) {
	eng, handler := newTestEngine()
	cfg := &ir.Config{Resources: []*ir.Resource{box("a", nil)}}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := eng.Apply(ctx, plan, store)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, handler.createCalls)
	assert.Equal(t, StatusNotAttempted, report.Items[0].Status)
}

func TestApply_ParallelSiblings(t *testing.T) {
	eng, handler := newTestEngine()
	eng.Parallelism = 4
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			box("w", nil), box("x", nil), box("y", nil), box("z", nil),
		},
	}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	report, err := eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, 4, handler.createCalls)
	assert.Len(t, store.commits, 4)
	for _, item := range report.Items {
		assert.Equal(t, StatusSucceeded, item.Status)
	}
}

func TestApply_NoOpPlanTouchesNothing(t *testing.T) {
	eng, handler := newTestEngine()
	cfg := &ir.Config{Resources: []*ir.Resource{box("a", map[string]any{"size": "s"})}}
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"size": "s"})},
	})

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)
	require.False(t, plan.Changes())

	_, err = eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)
	assert.Equal(t, 0, handler.createCalls+handler.updateCalls+handler.deleteCalls)
	assert.Empty(t, store.commits)
}

func TestApply_EmitsEvents(t *testing.T) {
	eng, _ := newTestEngine()
	var events []ApplyEvent
	eng.Events = func(ev ApplyEvent) { events = append(events, ev) }

	cfg := &ir.Config{Resources: []*ir.Resource{box("a", nil)}}
	store := newMemStore(nil)

	plan, err := eng.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), plan, store)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.True(t, events[0].Started)
	assert.Equal(t, StatusSucceeded, events[1].Status)
	assert.Equal(t, "box.a", events[1].Addr)
}
