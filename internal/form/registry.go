package form

import (
	"sync"

	"github.com/roach88/formlink/internal/path"
)

// registryKey is the backend key announced whenever the set of registered
// nodes changes. Wildcard dependency reads track it.
const registryKey = "$fields"

// RegistryKey returns the backend key that changes with the node registry.
func RegistryKey() string {
	return registryKey
}

// registry maps paths to nodes and preserves insertion order.
type registry struct {
	mu    sync.RWMutex
	order []string
	nodes map[string]Node
}

func newRegistry() *registry {
	return &registry{nodes: make(map[string]Node)}
}

func (r *registry) get(p string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[p]
	return n, ok
}

// add registers n unless its path is taken, returning the registered node.
func (r *registry) add(n Node) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.nodes[n.Path()]; ok {
		return existing, false
	}
	r.nodes[n.Path()] = n
	r.order = append(r.order, n.Path())
	return n, true
}

func (r *registry) remove(p string) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[p]
	if !ok {
		return nil, false
	}
	delete(r.nodes, p)
	for i, o := range r.order {
		if o == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return n, true
}

// list returns the registered nodes in insertion order.
func (r *registry) list() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.nodes[p])
	}
	return out
}

// query returns nodes whose path matches pattern, in insertion order.
func (r *registry) query(pattern string) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Node{}
	for _, p := range r.order {
		if path.Match(pattern, p) {
			out = append(out, r.nodes[p])
		}
	}
	return out
}

// under returns the paths strictly below prefix, most recently registered
// first.
func (r *registry) under(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for i := len(r.order) - 1; i >= 0; i-- {
		p := r.order[i]
		if p != prefix && path.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}
