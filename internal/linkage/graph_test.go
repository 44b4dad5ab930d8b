package linkage

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AcyclicChain(t *testing.T) {
	g := NewGraph()
	addEdges(g, "r1", []string{"a"}, "b")
	addEdges(g, "r2", []string{"b"}, "c")
	addEdges(g, "r3", []string{"a", "c"}, "d")

	assert.Nil(t, findCycle(g))
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, 4, g.Edges())
}

func TestGraph_FindCyclePath(t *testing.T) {
	g := NewGraph()
	addEdges(g, "r1", []string{"a"}, "b")
	addEdges(g, "r2", []string{"b"}, "c")
	addEdges(g, "r3", []string{"c"}, "a")

	assert.Equal(t, []string{"b", "c", "a", "b"}, findCycle(g))
}

func TestGraph_RemoveOwnerRollsBack(t *testing.T) {
	g := NewGraph()
	addEdges(g, "keep", []string{"a"}, "b")
	addEdges(g, "bad", []string{"b"}, "a")
	require.NotNil(t, findCycle(g))

	g.RemoveOwner("bad")
	assert.Nil(t, findCycle(g))
	assert.Equal(t, 1, g.Edges())
	assert.True(t, g.Has("a"))

	g.RemoveOwner("bad")
	g.RemoveOwner("unknown")
	assert.Equal(t, 1, g.Edges())
}

func TestGraph_PruneAndReuse(t *testing.T) {
	g := NewGraph()
	addEdges(g, "r1", []string{"a"}, "b")
	addEdges(g, "r2", []string{"c"}, "d")

	g.Prune("a")
	assert.True(t, g.Has("a"), "nodes with edges stay")

	g.RemoveOwner("r1")
	assert.False(t, g.Has("a"))
	assert.False(t, g.Has("b"))
	assert.Equal(t, 2, g.Len())

	addEdges(g, "r3", []string{"e"}, "f")
	assert.Equal(t, 4, g.Len())
	assert.Len(t, g.names, 4, "freed IDs are reused")
	assert.Nil(t, findCycle(g))
}

func TestGraph_WildcardSourcesMatchConcretePaths(t *testing.T) {
	g := NewGraph()
	addEdges(g, "sum", []string{"rows.*.price"}, "total")
	addEdges(g, "other", []string{"rows.0.qty"}, "rows.0.price")
	assert.Nil(t, findCycle(g))

	addEdges(g, "back", []string{"total"}, "rows.1.price")
	assert.Equal(t, []string{"total", "rows.1.price", "total"}, findCycle(g))
}

func TestGraph_SelfLoop(t *testing.T) {
	g := NewGraph()
	addEdges(g, "self", []string{"a"}, "a")
	assert.Equal(t, []string{"a", "a"}, findCycle(g))
}

func TestGraph_Link(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(g *Graph)
		sources []string
		target  string
		cycle   []string
	}{
		{
			name:    "acyclic",
			setup:   func(g *Graph) { g.Link("r1", []string{"a"}, "b") },
			sources: []string{"b"},
			target:  "c",
		},
		{
			name:    "two node cycle",
			setup:   func(g *Graph) { g.Link("r1", []string{"b"}, "a") },
			sources: []string{"a"},
			target:  "b",
			cycle:   []string{"a", "b", "a"},
		},
		{
			name: "long cycle",
			setup: func(g *Graph) {
				g.Link("r1", []string{"b"}, "c")
				g.Link("r2", []string{"c"}, "d")
			},
			sources: []string{"d"},
			target:  "b",
			cycle:   []string{"d", "b", "c", "d"},
		},
		{
			name:    "self loop",
			setup:   func(*Graph) {},
			sources: []string{"a"},
			target:  "a",
			cycle:   []string{"a", "a"},
		},
		{
			name:    "wildcard source reached by a row",
			setup:   func(g *Graph) { g.Link("r1", []string{"total"}, "rows.1.price") },
			sources: []string{"rows.*.price"},
			target:  "total",
			cycle:   []string{"rows.1.price", "total", "rows.1.price"},
		},
		{
			name:    "wildcard source feeding the new target",
			setup:   func(g *Graph) { g.Link("sum", []string{"rows.*.price"}, "total") },
			sources: []string{"total"},
			target:  "rows.0.price",
			cycle:   []string{"total", "rows.0.price", "total"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			tt.setup(g)
			edges := g.Edges()

			got := g.Link("new", tt.sources, tt.target)
			assert.Equal(t, tt.cycle, got)
			if tt.cycle != nil {
				assert.Equal(t, edges, g.Edges(), "a rejected rule records nothing")
			}
			assert.Nil(t, findCycle(g))
		})
	}
}

func TestGraph_PrunedPatternsAreForgotten(t *testing.T) {
	g := NewGraph()
	g.Link("sum", []string{"rows.*.price"}, "total")
	require.Len(t, g.patterns, 1)

	g.RemoveOwner("sum")
	assert.Empty(t, g.patterns)
	assert.Nil(t, g.Link("back", []string{"total"}, "rows.0.price"))
}

func TestGraph_LinkManyIndependentRules(t *testing.T) {
	g := NewGraph()
	for i := range 2000 {
		require.Nil(t, g.Link(fmt.Sprintf("r%d", i), []string{"src"}, fmt.Sprintf("dep%d", i)))
	}
	assert.Equal(t, 2000, g.Edges())
	assert.NotNil(t, g.Link("back", []string{"dep7"}, "src"))
}

// addEdges records edges without the cycle check, so tests can build cyclic
// graphs.
func addEdges(g *Graph, owner string, sources []string, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addEdgesLocked(owner, sources, target)
}

const (
	white = iota
	grey
	black
)

// findCycle searches the whole graph with an iterative depth-first walk and
// returns the first cycle found as a path list that starts and ends at the
// same node. It returns nil for an acyclic graph.
func findCycle(g *Graph) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	type frame struct {
		id   int
		next []int
		pos  int
	}

	color := make([]int, len(g.names))
	parent := make([]int, len(g.names))

	for root := range g.names {
		if !g.live[root] || color[root] != white {
			continue
		}
		color[root] = grey
		parent[root] = -1
		stack := []frame{{id: root, next: g.successors(root)}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.pos == len(top.next) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			w := top.next[top.pos]
			top.pos++

			switch color[w] {
			case grey:
				return cyclePath(g, parent, top.id, w)
			case white:
				color[w] = grey
				parent[w] = top.id
				stack = append(stack, frame{id: w, next: g.successors(w)})
			}
		}
	}
	return nil
}

// cyclePath rebuilds the cycle closed by the back edge from -> to.
func cyclePath(g *Graph, parent []int, from, to int) []string {
	ids := []int{from}
	for cur := from; cur != to; {
		cur = parent[cur]
		ids = append(ids, cur)
	}
	slices.Reverse(ids)
	out := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		out = append(out, g.names[id])
	}
	return append(out, g.names[to])
}
