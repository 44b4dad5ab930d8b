package linkage

import (
	"slices"
	"sync"

	"github.com/roach88/formlink/internal/path"
)

// Graph is the dependency graph between field paths. An edge from a watched
// path to a target path means a change at the source may write the target.
//
// Paths are interned as integer IDs in a flat table; edges are index pairs
// kept in per-node adjacency lists. IDs of pruned nodes are reused. Edges
// are grouped by owner (one reaction rule) so a rejected rule can be rolled
// back without touching the edges of other rules.
//
// A wildcard source such as "items.*.price" also feeds every concrete path
// it matches when cycles are searched. Wildcard nodes are indexed apart so
// that expanding them never scans the concrete nodes.
//
// Thread-safety: Graph is safe for concurrent use.
type Graph struct {
	mu     sync.Mutex
	ids    map[string]int
	names  []string
	live   []bool
	out    [][]edge
	inDeg  []int
	free   []int
	owners map[string][]edge

	// patterns holds the IDs of live wildcard nodes.
	patterns []int
}

type edge struct {
	from, to int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		ids:    make(map[string]int),
		owners: make(map[string][]edge),
	}
}

// intern returns the ID of p, allocating one if needed. Must be called with
// g.mu held.
func (g *Graph) intern(p string) int {
	if id, ok := g.ids[p]; ok {
		return id
	}
	var id int
	if n := len(g.free); n > 0 {
		id = g.free[n-1]
		g.free = g.free[:n-1]
		g.names[id] = p
		g.live[id] = true
		g.out[id] = nil
		g.inDeg[id] = 0
	} else {
		id = len(g.names)
		g.names = append(g.names, p)
		g.live = append(g.live, true)
		g.out = append(g.out, nil)
		g.inDeg = append(g.inDeg, 0)
	}
	g.ids[p] = id
	if path.IsPattern(p) {
		g.patterns = append(g.patterns, id)
	}
	return id
}

// addEdgesLocked records one edge from every source to target under owner.
// Must be called with g.mu held.
func (g *Graph) addEdgesLocked(owner string, sources []string, target string) {
	to := g.intern(target)
	for _, s := range sources {
		e := edge{from: g.intern(s), to: to}
		g.out[e.from] = append(g.out[e.from], e)
		g.inDeg[to]++
		g.owners[owner] = append(g.owners[owner], e)
	}
}

// Link records the edges of owner unless they would close a cycle. On a
// cycle nothing is recorded and the cycle is returned, starting and ending
// at the watched path that closes it.
//
// The graph is acyclic before the call, so a new cycle has to run through
// one of the new edges: it exists exactly when target already reaches one
// of sources. Only the part of the graph reachable from target is walked.
func (g *Graph) Link(owner string, sources []string, target string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cycle := g.reachLocked(sources, target); cycle != nil {
		return cycle
	}
	g.addEdgesLocked(owner, sources, target)
	return nil
}

// reachLocked walks forward from target and returns source → target → ...
// → source for the first node that is one of sources or matches a wildcard
// source. Must be called with g.mu held.
func (g *Graph) reachLocked(sources []string, target string) []string {
	feeds := func(name string) (string, bool) {
		for _, s := range sources {
			if s == name || (path.IsPattern(s) && !path.IsPattern(name) && path.Match(s, name)) {
				return name, true
			}
		}
		return "", false
	}
	if hit, ok := feeds(target); ok {
		return []string{hit, target}
	}
	// A target without a node of its own can still feed wildcard sources.
	const virtual = -1
	start, ok := g.ids[target]
	if !ok {
		start = virtual
	}
	next := func(id int) []int {
		if id == virtual {
			return g.patternTargets(target)
		}
		return g.successors(id)
	}

	parent := map[int]int{start: start}
	queue := []int{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, w := range next(id) {
			if _, seen := parent[w]; seen {
				continue
			}
			parent[w] = id
			if hit, ok := feeds(g.names[w]); ok {
				trail := []string{}
				for cur := w; cur != start; cur = parent[cur] {
					trail = append(trail, g.names[cur])
				}
				trail = append(trail, target)
				slices.Reverse(trail)
				return append([]string{hit}, trail...)
			}
			queue = append(queue, w)
		}
	}
	return nil
}

// RemoveOwner drops every edge recorded under owner and prunes nodes left
// without edges. Unknown owners are ignored.
func (g *Graph) RemoveOwner(owner string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edges, ok := g.owners[owner]
	if !ok {
		return
	}
	delete(g.owners, owner)
	for _, e := range edges {
		if i := slices.Index(g.out[e.from], e); i >= 0 {
			g.out[e.from] = slices.Delete(g.out[e.from], i, i+1)
			g.inDeg[e.to]--
		}
	}
	for _, e := range edges {
		g.pruneLocked(e.from)
		g.pruneLocked(e.to)
	}
}

// Prune drops the node for p when no edge touches it.
func (g *Graph) Prune(p string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.ids[p]; ok {
		g.pruneLocked(id)
	}
}

func (g *Graph) pruneLocked(id int) {
	if !g.live[id] || len(g.out[id]) > 0 || g.inDeg[id] > 0 {
		return
	}
	delete(g.ids, g.names[id])
	if i := slices.Index(g.patterns, id); i >= 0 {
		g.patterns = slices.Delete(g.patterns, i, i+1)
	}
	g.names[id] = ""
	g.live[id] = false
	g.out[id] = nil
	g.free = append(g.free, id)
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}

// Has reports whether a node exists for p.
func (g *Graph) Has(p string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ids[p]
	return ok
}

// Edges returns the number of edges.
func (g *Graph) Edges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, es := range g.out {
		n += len(es)
	}
	return n
}

// successors returns the targets reachable in one step from id, including
// those of wildcard sources matching its path. Must be called with g.mu
// held.
func (g *Graph) successors(id int) []int {
	next := make([]int, 0, len(g.out[id]))
	for _, e := range g.out[id] {
		next = append(next, e.to)
	}
	return append(next, g.patternTargets(g.names[id])...)
}

// patternTargets returns the targets of the wildcard sources matching name.
// Must be called with g.mu held.
func (g *Graph) patternTargets(name string) []int {
	if path.IsPattern(name) {
		return nil
	}
	var next []int
	for _, pid := range g.patterns {
		if path.Match(g.names[pid], name) {
			for _, e := range g.out[pid] {
				next = append(next, e.to)
			}
		}
	}
	return next
}
