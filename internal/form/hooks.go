package form

import (
	"context"
	"sort"
	"sync"
)

// Middleware wraps a form operation. It must call next to continue the
// chain and may run code before and after it.
type Middleware func(ctx context.Context, next func(context.Context) error) error

// CreateFieldMiddleware wraps node creation and may rewrite props before
// passing them on.
type CreateFieldMiddleware func(props Props, next func(Props) (Node, error)) (Node, error)

// HookPoint names one of the middleware chains.
type HookPoint string

const (
	HookSubmit    HookPoint = "submit"
	HookValidate  HookPoint = "validate"
	HookSetValues HookPoint = "setValues"
	HookReset     HookPoint = "reset"
)

// Pipeline holds the middleware chains wrapping form operations. Each chain
// is ordered by ascending priority; equal priorities keep registration
// order. The lowest priority runs outermost.
type Pipeline struct {
	mu     sync.RWMutex
	chains map[HookPoint][]hook[Middleware]
	create []hook[CreateFieldMiddleware]
}

type hook[T any] struct {
	priority int
	fn       T
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{chains: make(map[HookPoint][]hook[Middleware])}
}

// Use registers mw on the chain at point.
func (p *Pipeline) Use(point HookPoint, priority int, mw Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chain := append(p.chains[point], hook[Middleware]{priority: priority, fn: mw})
	sortHooks(chain)
	p.chains[point] = chain
}

// UseCreateField registers mw on the createField chain.
func (p *Pipeline) UseCreateField(priority int, mw CreateFieldMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.create = append(p.create, hook[CreateFieldMiddleware]{priority: priority, fn: mw})
	sortHooks(p.create)
}

func sortHooks[T any](chain []hook[T]) {
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].priority < chain[j].priority
	})
}

// Run executes core wrapped by the chain at point.
func (p *Pipeline) Run(ctx context.Context, point HookPoint, core func(context.Context) error) error {
	p.mu.RLock()
	chain := append([]hook[Middleware](nil), p.chains[point]...)
	p.mu.RUnlock()

	next := core
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i].fn
		inner := next
		next = func(ctx context.Context) error {
			return mw(ctx, inner)
		}
	}
	return next(ctx)
}

// RunCreateField executes core wrapped by the createField chain.
func (p *Pipeline) RunCreateField(props Props, core func(Props) (Node, error)) (Node, error) {
	p.mu.RLock()
	chain := append([]hook[CreateFieldMiddleware](nil), p.create...)
	p.mu.RUnlock()

	next := core
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i].fn
		inner := next
		next = func(props Props) (Node, error) {
			return mw(props, inner)
		}
	}
	return next(props)
}

// Len returns the number of middlewares at point.
func (p *Pipeline) Len(point HookPoint) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chains[point])
}
