package reactive

import "sync"

// Computed caches the result of fn and recomputes it whenever a key fn
// tracked changes.
type Computed[T any] struct {
	mu      sync.RWMutex
	value   T
	dispose Disposer
}

// NewComputed builds a computed value on top of any Backend.
func NewComputed[T any](b Backend, fn func(Tracker) T) *Computed[T] {
	c := &Computed[T]{}
	c.dispose = b.Reaction(
		func(t Tracker) any { return fn(t) },
		func(v, _ any) {
			val, _ := v.(T)
			c.mu.Lock()
			c.value = val
			c.mu.Unlock()
		},
		ReactionOptions{FireImmediately: true},
	)
	return c
}

// Get returns the cached value.
func (c *Computed[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Dispose stops recomputation. The last value stays readable.
func (c *Computed[T]) Dispose() {
	c.dispose()
}
