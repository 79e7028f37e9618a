package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
)

func ref(target, path string) ir.Reference {
	return ir.Reference{Target: target, Path: path}
}

func TestBuildGraph_Edges(t *testing.T) {
	resources := []*ir.Resource{
		box("vpc", nil),
		box("subnet", map[string]any{"vpcId": ref("box.vpc", "id")}),
		box("instance", map[string]any{"subnetId": ref("box.subnet", "id")}),
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	assert.Equal(t, []string{"box.vpc"}, g.Dependencies("box.subnet"))
	assert.Equal(t, []string{"box.subnet"}, g.Dependencies("box.instance"))
	assert.Equal(t, []string{"box.subnet"}, g.Dependents("box.vpc"))

	order := g.CreationOrder()
	assert.Equal(t, []string{"box.vpc", "box.subnet", "box.instance"}, order)
	assert.Equal(t, []string{"box.instance", "box.subnet", "box.vpc"}, g.DestructionOrder())
}

func TestBuildGraph_DependsOn(t *testing.T) {
	resources := []*ir.Resource{
		box("a", nil),
		{Kind: "box", Name: "b", DependsOn: []string{"box.a"}, Attributes: map[string]any{}},
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"box.a"}, g.Dependencies("box.b"))
}

func TestBuildGraph_DuplicateAddr(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{box("a", nil), box("a", nil)})
	var dup *DuplicateResourceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "box.a", dup.Addr)
}

func TestBuildGraph_UnresolvedReference(t *testing.T) {
	resources := []*ir.Resource{
		box("a", map[string]any{"x": ref("box.missing", "id")}),
	}

	_, err := BuildGraph(resources)
	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "box.a", unresolved.From)
	assert.Equal(t, "box.missing", unresolved.Target)
}

func TestBuildGraph_CycleMembers(t *testing.T) {
	resources := []*ir.Resource{
		box("a", map[string]any{"x": ref("box.c", "id")}),
		box("b", map[string]any{"x": ref("box.a", "id")}),
		box("c", map[string]any{"x": ref("box.b", "id")}),
		box("standalone", nil),
	}

	_, err := BuildGraph(resources)
	var cycle *CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"box.a", "box.b", "box.c"}, cycle.Members)
}

func TestBuildGraph_CycleMembersExcludeDownstream(t *testing.T) {
	// c depends on the a<->b cycle but is not part of it; the error names
	// only the resources actually on the cycle.
	resources := []*ir.Resource{
		box("a", map[string]any{"x": ref("box.b", "id")}),
		box("b", map[string]any{"x": ref("box.a", "id")}),
		box("c", map[string]any{"x": ref("box.a", "id")}),
	}

	_, err := BuildGraph(resources)
	var cycle *CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"box.a", "box.b"}, cycle.Members)
}

func TestBuildGraph_SelfReferenceIgnored(t *testing.T) {
	// A resource referring to itself contributes no edge; the declaration
	// is degenerate but not a cycle among distinct resources.
	resources := []*ir.Resource{
		box("a", map[string]any{"x": ref("box.a", "id")}),
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Empty(t, g.Dependencies("box.a"))
}

func TestCreationOrder_Deterministic(t *testing.T) {
	resources := []*ir.Resource{
		box("z", nil),
		box("m", nil),
		box("a", nil),
	}

	// Independent resources keep declaration order, run after run.
	for i := 0; i < 20; i++ {
		g, err := BuildGraph(resources)
		require.NoError(t, err)
		assert.Equal(t, []string{"box.z", "box.m", "box.a"}, g.CreationOrder())
	}
}

func TestCreationOrder_DiamondTieBreak(t *testing.T) {
	resources := []*ir.Resource{
		box("root", nil),
		box("left", map[string]any{"x": ref("box.root", "id")}),
		box("right", map[string]any{"x": ref("box.root", "id")}),
		box("sink", map[string]any{
			"l": ref("box.left", "id"),
			"r": ref("box.right", "id"),
		}),
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"box.root", "box.left", "box.right", "box.sink"}, g.CreationOrder())
}

func TestGraphDOT(t *testing.T) {
	resources := []*ir.Resource{
		box("a", nil),
		box("b", map[string]any{"x": ref("box.a", "id")}),
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)

	dot := g.DOT()
	assert.Contains(t, dot, "digraph resources")
	assert.Contains(t, dot, `"box.b" -> "box.a";`)
}
