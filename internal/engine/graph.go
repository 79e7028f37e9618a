package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stackform-io/stackform/internal/ir"
)

// Graph is the directed dependency graph over declared resources. Nodes are
// resource addresses; an edge A->B means A depends on B. Building the graph
// is a pure function of the declarations and fails fast on duplicate
// identities, unresolved references and cycles.
type Graph struct {
	nodes     map[string]*graphNode
	declOrder map[string]int // address -> declaration index, for stable ordering
	order     []string       // creation order
}

type graphNode struct {
	addr     string
	edges    []string // producers this node depends on
	revEdges []string // dependents of this node
}

// BuildGraph constructs the dependency graph from a declaration set,
// resolving both explicit dependsOn entries and references embedded in
// attribute trees.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	g := &Graph{
		nodes:     make(map[string]*graphNode, len(resources)),
		declOrder: make(map[string]int, len(resources)),
	}

	for i, res := range resources {
		addr := res.Addr()
		if _, dup := g.nodes[addr]; dup {
			return nil, &DuplicateResourceError{Addr: addr}
		}
		g.nodes[addr] = &graphNode{addr: addr}
		g.declOrder[addr] = i
	}

	for _, res := range resources {
		addr := res.Addr()
		node := g.nodes[addr]
		seen := make(map[string]bool)

		for _, dep := range res.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnresolvedReferenceError{From: addr, Target: dep}
			}
			if dep != addr && !seen[dep] {
				seen[dep] = true
				node.edges = append(node.edges, dep)
			}
		}

		for _, ref := range ir.References(res.Attributes) {
			if _, ok := g.nodes[ref.Target]; !ok {
				return nil, &UnresolvedReferenceError{From: addr, Target: ref.Target}
			}
			if ref.Target != addr && !seen[ref.Target] {
				seen[ref.Target] = true
				node.edges = append(node.edges, ref.Target)
			}
		}
	}

	for addr, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, addr)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// CreationOrder returns every address in dependency-respecting creation
// order. The order is deterministic: ties break on declaration order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns the reverse of the creation order, safe for
// tearing everything down.
func (g *Graph) DestructionOrder() []string {
	rev := make([]string, len(g.order))
	for i, addr := range g.order {
		rev[len(g.order)-1-i] = addr
	}
	return rev
}

// Dependencies returns the producers addr depends on.
func (g *Graph) Dependencies(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the resources depending on addr.
func (g *Graph) Dependents(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.revEdges
	}
	return nil
}

// topoSort runs Kahn's algorithm with a declaration-order tie-break so the
// same declarations always produce the same order. Leftover nodes after the
// sort are the cycle members plus everything downstream of them; the error
// reports only the nodes actually on a cycle.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		inDegree[addr] = len(node.edges)
	}

	var ready []string
	for addr, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, addr)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		next := 0
		for i := 1; i < len(ready); i++ {
			if g.declOrder[ready[i]] < g.declOrder[ready[next]] {
				next = i
			}
		}
		addr := ready[next]
		ready = append(ready[:next], ready[next+1:]...)
		sorted = append(sorted, addr)

		for _, dependent := range g.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		leftover := make(map[string]bool, len(g.nodes))
		for addr, deg := range inDegree {
			if deg > 0 {
				leftover[addr] = true
			}
		}
		var members []string
		for addr := range leftover {
			if g.reachesSelf(addr, leftover) {
				members = append(members, addr)
			}
		}
		sort.Strings(members)
		return nil, &CyclicDependencyError{Members: members}
	}

	return sorted, nil
}

// reachesSelf reports whether start can get back to itself along dependency
// edges restricted to the given node set. A node is on a cycle exactly when
// it can.
func (g *Graph) reachesSelf(start string, within map[string]bool) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.nodes[addr].edges {
			if !within[dep] {
				continue
			}
			if dep == start {
				return true
			}
			if !seen[dep] {
				seen[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// DOT renders the graph in graphviz dot form for the graph command.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph resources {\n")
	for _, addr := range g.order {
		fmt.Fprintf(&b, "  %q;\n", addr)
		for _, dep := range g.nodes[addr].edges {
			fmt.Fprintf(&b, "  %q -> %q;\n", addr, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
