package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct{}

func (stubHandler) Schema() Schema { return Schema{Mutable: []string{"tags"}} }
func (stubHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	return "", nil, nil
}
func (stubHandler) Read(ctx context.Context, id string) (map[string]any, error) { return nil, nil }
func (stubHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	return nil, nil
}
func (stubHandler) Delete(ctx context.Context, id string) error { return nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("thing", stubHandler{}))

	err := reg.Register("thing", stubHandler{})
	require.Error(t, err)

	h, err := reg.Get("thing")
	require.NoError(t, err)
	assert.NotNil(t, h)

	_, err = reg.Get("unknown")
	require.Error(t, err)

	schema, err := reg.Schema("thing")
	require.NoError(t, err)
	assert.True(t, schema.IsMutable("tags"))
	assert.False(t, schema.IsMutable("name"))

	require.NoError(t, reg.Register("aaa", stubHandler{}))
	assert.Equal(t, []string{"aaa", "thing"}, reg.Kinds())
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, ClassTransient, ClassOf(Transient(base)))
	assert.Equal(t, ClassPermanent, ClassOf(Permanent(base)))
	assert.Equal(t, ClassNotFound, ClassOf(NotFound(base)))
	assert.Equal(t, ClassPermanent, ClassOf(base))
	assert.Equal(t, ClassPermanent, ClassOf(nil))

	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsTransient(base))
	assert.True(t, IsNotFound(NotFound(base)))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("applying aws_vpc.main: %w", Transient(base))
	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, base)
}
