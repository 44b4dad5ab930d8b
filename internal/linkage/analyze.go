package linkage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/path"
)

// CycleWarning describes one cycle found by static analysis.
type CycleWarning struct {
	Path    []string `json:"path"`    // cycle path, first node repeated at the end
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "error": the engine rejects cycles
}

// AnalyzeCycles reports every dependency cycle among the reactions declared
// in props, without building a form.
//
// Unlike Activate, which rejects rules one at a time in creation order, the
// analysis sees all rules at once:
//  1. Build the path graph from watch → target edges (wildcard sources feed
//     every declared path they match)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each component with more than one node, or with a self-loop
//
// Output is sorted so that reports are stable.
func AnalyzeCycles(props []form.Props) []CycleWarning {
	g := buildPathGraph(props)
	if len(g) == 0 {
		return []CycleWarning{}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			warnings = append(warnings, sccToWarning(scc, g))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// pathGraph maps a path to the paths its changes may write.
type pathGraph map[string][]string

func buildPathGraph(props []form.Props) pathGraph {
	g := make(pathGraph)
	declared := make([]string, 0, len(props))
	for _, p := range props {
		declared = append(declared, p.Path())
	}

	addEdge := func(from, to string) {
		if !slices.Contains(g[from], to) {
			g[from] = append(g[from], to)
		}
		if _, ok := g[to]; !ok {
			g[to] = []string{}
		}
	}

	for _, p := range props {
		owner := p.Path()
		for i, r := range p.Reactions {
			c := compile(owner, i, r)
			for _, w := range c.watch {
				if !path.IsPattern(w) {
					addEdge(w, c.target)
					continue
				}
				for _, d := range declared {
					if path.Match(w, d) {
						addEdge(d, c.target)
					}
				}
			}
		}
	}
	for k := range g {
		slices.Sort(g[k])
	}
	return g
}

func hasSelfLoop(node string, g pathGraph) bool {
	return slices.Contains(g[node], node)
}

// tarjanSCC finds strongly connected components. Nodes are visited in
// sorted order so the result does not depend on map iteration.
func tarjanSCC(g pathGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, g pathGraph) CycleWarning {
	if len(scc) == 1 {
		p := scc[0]
		return CycleWarning{
			Path:    []string{p, p},
			Message: fmt.Sprintf("field reaction writes the path it watches: %s → %s", p, p),
			Level:   "error",
		}
	}
	cycle := cyclePathIn(scc, g)
	return CycleWarning{
		Path:    cycle,
		Message: "dependency cycle: " + strings.Join(cycle, " → "),
		Level:   "error",
	}
}

// cyclePathIn walks edges inside scc from its first member until it returns
// to the start.
func cyclePathIn(scc []string, g pathGraph) []string {
	start := scc[0]
	cycle := []string{start}
	visited := map[string]bool{}
	for cur := start; ; {
		visited[cur] = true
		next := ""
		for _, w := range g[cur] {
			if slices.Contains(scc, w) && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			return cycle
		}
		cycle = append(cycle, next)
		if next == start {
			return cycle
		}
		cur = next
	}
}
