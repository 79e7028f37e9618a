package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/provider"
)

func TestNullResource_Lifecycle(t *testing.T) {
	h := New()
	ctx := context.Background()
	attrs := map[string]any{"triggers": map[string]any{"build": "1"}}

	id, outputs, err := h.Create(ctx, attrs)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, outputs["id"])

	read, err := h.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, attrs, read)

	updated := map[string]any{"triggers": map[string]any{"build": "2"}}
	outputs, err = h.Update(ctx, id, updated)
	require.NoError(t, err)
	assert.Equal(t, updated["triggers"], outputs["triggers"])

	require.NoError(t, h.Delete(ctx, id))
	_, err = h.Read(ctx, id)
	assert.True(t, provider.IsNotFound(err))

	// Deleting twice stays silent.
	require.NoError(t, h.Delete(ctx, id))
}

func TestNullResource_TriggersForceReplacement(t *testing.T) {
	h := New()
	schema := h.Schema()
	assert.False(t, schema.IsMutable("triggers"))
	assert.Contains(t, schema.ForcesReplacement, "triggers")
}

func TestRegister(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, Register(reg))
	_, err := reg.Get("null_resource")
	require.NoError(t, err)
}
