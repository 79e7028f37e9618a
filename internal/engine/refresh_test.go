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

func TestRefresh_UpdatesObservedAttributes(t *testing.T) {
	eng, _ := newTestEngine()
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", map[string]any{"stale": "yes"})},
	})

	require.NoError(t, eng.Refresh(context.Background(), store))

	a := store.state.Resource("box.a")
	require.NotNil(t, a)
	assert.Equal(t, true, a.Attributes["observed"])
	assert.Nil(t, a.Attributes["stale"])
	assert.Equal(t, "id-a", a.ID)
}

func TestRefresh_PrunesMissingResources(t *testing.T) {
	eng, handler := newTestEngine()
	handler.readErr = provider.NotFound(errors.New("gone"))
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", nil)},
	})

	require.NoError(t, eng.Refresh(context.Background(), store))
	assert.Empty(t, store.state.Resources)
	assert.Equal(t, []string{"box.a"}, store.removes)
}

func TestRefresh_PermanentErrorAborts(t *testing.T) {
	eng, handler := newTestEngine()
	handler.readErr = provider.Permanent(errors.New("access denied"))
	store := newMemStore(&ir.State{
		Version:   1,
		Resources: []*ir.ResourceState{boxState("a", nil)},
	})

	err := eng.Refresh(context.Background(), store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "box.a")
}
