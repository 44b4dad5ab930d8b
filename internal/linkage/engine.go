// Package linkage turns the reactions declared on form nodes into live
// subscriptions.
//
// For every rule the Engine records watch → target edges in a dependency
// Graph and rejects the rule when those edges would close a cycle. Accepted
// rules become backend reactions over the freshly read watched values. Each
// execution builds a form.Scope, evaluates the condition and applies the
// chosen effect in a fixed order:
//
//	state → value → component props → component → data source → run
//
// Failures inside an execution never escape into the reactivity backend:
// they are recovered, logged and kept as Diagnostics.
package linkage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/path"
	"github.com/roach88/formlink/internal/reactive"
)

// ErrNoEvaluator is reported when a rule uses an expression on a form
// without an evaluator.
var ErrNoEvaluator = errors.New("linkage: expression used without an evaluator")

// Engine implements form.Linker.
//
// Thread-safety: Engine is safe for concurrent use. Its lock is never held
// while reactions execute.
type Engine struct {
	form   *form.Form
	logger *slog.Logger
	graph  *Graph
	onDiag func(Diagnostic)

	ctx    context.Context
	cancel context.CancelFunc
	loads  sync.WaitGroup

	mu          sync.Mutex
	rules       map[string][]string
	subs        map[string][]reactive.Disposer
	diagnostics []Diagnostic
	disposed    bool
}

var _ form.Linker = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to the form logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDiagnosticHandler registers fn to receive every diagnostic as it is
// reported.
func WithDiagnosticHandler(fn func(Diagnostic)) Option {
	return func(e *Engine) {
		e.onDiag = fn
	}
}

// New creates an engine for f.
func New(f *form.Form, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		form:   f,
		logger: f.Logger(),
		graph:  NewGraph(),
		ctx:    ctx,
		cancel: cancel,
		rules:  make(map[string][]string),
		subs:   make(map[string][]reactive.Disposer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factory returns a form.LinkerFactory building engines with opts.
func Factory(opts ...Option) form.LinkerFactory {
	return func(f *form.Form) form.Linker {
		return New(f, opts...)
	}
}

// rule is a reaction bound to its owner with resolved paths.
type rule struct {
	key      string
	owner    string
	watch    []string
	target   string
	explicit bool
	reaction form.Reaction
}

func compile(owner string, i int, r form.Reaction) *rule {
	key := fmt.Sprintf("%s#%d", owner, i)
	if r.ID != "" {
		key = owner + "#" + r.ID
	}
	c := &rule{
		key:      key,
		owner:    owner,
		target:   owner,
		reaction: r,
	}
	for _, w := range r.Watch {
		c.watch = append(c.watch, path.Resolve(owner, w))
	}
	if r.Target != "" {
		c.target = path.Resolve(owner, r.Target)
		c.explicit = c.target != owner
	}
	return c
}

// Activate implements form.Linker. Rules that would close a cycle are
// reported and skipped; the others are subscribed and run once right away.
// Activating a path that is already active is a no-op.
func (e *Engine) Activate(n form.Node) error {
	owner := n.Path()

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return form.ErrDisposed
	}
	if _, ok := e.rules[owner]; ok {
		e.mu.Unlock()
		return nil
	}
	e.rules[owner] = []string{}
	e.mu.Unlock()

	for i, r := range n.Reactions() {
		c := compile(owner, i, r)

		if cycle := e.graph.Link(c.key, c.watch, c.target); cycle != nil {
			e.report(newCycleDiagnostic(owner, c.key, cycle))
			continue
		}

		e.mu.Lock()
		e.rules[owner] = append(e.rules[owner], c.key)
		e.mu.Unlock()

		e.logger.Debug("reaction activated",
			"form", e.form.ID(),
			"rule", c.key,
			"watch", c.watch,
			"target", c.target)
		e.subscribe(c)
	}
	return nil
}

// subscribe hands c to the backend. Debounced rules delay every execution,
// the first one included; disposing the reaction cancels a pending one.
func (e *Engine) subscribe(c *rule) {
	effect := func(value, _ any) {
		deps, _ := value.([]any)
		e.execute(c, deps)
	}
	track := func(t reactive.Tracker) any {
		return e.read(t, c.watch)
	}

	dispose := e.form.Backend().Reaction(track, effect, reactive.ReactionOptions{
		FireImmediately: true,
		Debounce:        c.reaction.Debounce,
	})

	e.mu.Lock()
	_, active := e.rules[c.owner]
	if e.disposed || !active {
		e.mu.Unlock()
		dispose()
		return
	}
	e.subs[c.owner] = append(e.subs[c.owner], dispose)
	e.mu.Unlock()
}

// read returns one entry per watched path. A wildcard path yields the list
// of values of the registered fields matching it, so it also tracks the
// registry.
func (e *Engine) read(t reactive.Tracker, watch []string) []any {
	store := e.form.Store()
	deps := make([]any, len(watch))
	for i, w := range watch {
		if !path.IsPattern(w) {
			deps[i] = store.Track(t, w)
			continue
		}
		reactive.Track(t, form.RegistryKey())
		vals := []any{}
		for _, fd := range e.form.QueryFields(w) {
			vals = append(vals, store.Track(t, fd.Path()))
		}
		deps[i] = vals
	}
	return deps
}

// execute runs one rule against the current form state.
func (e *Engine) execute(c *rule, deps []any) {
	if e.isDisposed() {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			e.report(newPanicDiagnostic(c.owner, c.key, p))
		}
	}()

	self, ok := e.form.Node(c.owner)
	if !ok {
		return
	}
	target := self
	if c.explicit {
		if target, ok = e.form.Node(c.target); !ok {
			e.report(newTargetDiagnostic(c.owner, c.key, c.target))
			return
		}
	}

	scope := e.scope(self, deps)
	// A condition that fails to evaluate counts as false so that the
	// otherwise branch can undo what an earlier fulfill applied.
	pass, err := e.condition(c.reaction.When, scope)
	if err != nil {
		e.report(newEvalDiagnostic(c.owner, c.key, err))
		pass = false
	}
	eff := c.reaction.Fulfill
	if !pass {
		eff = c.reaction.Otherwise
	}
	if eff == nil {
		return
	}

	p, err := e.plan(eff, scope)
	if err != nil {
		e.report(newEvalDiagnostic(c.owner, c.key, err))
		return
	}
	e.apply(c, target, p, scope)
}

// scope builds the execution context. The array row is located again on
// every run because structural mutations change what an index denotes.
func (e *Engine) scope(self form.Node, deps []any) form.Scope {
	s := form.NewScope(self, e.form)
	s.Deps = deps
	if row, idx, ok := path.Row(self.Path()); ok {
		s.Record, _ = e.form.Value(row)
		s.Index = idx
	}
	return s
}

func (e *Engine) condition(c *form.Condition, s form.Scope) (bool, error) {
	switch {
	case c == nil:
		return true, nil
	case c.Func != nil:
		return c.Func(s), nil
	case c.Expr != "":
		v, err := e.eval(c.Expr, s)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	}
	return true, nil
}

func (e *Engine) eval(expr string, s form.Scope) (any, error) {
	ev := e.form.Evaluator()
	if ev == nil {
		return nil, ErrNoEvaluator
	}
	v, err := ev.Evaluate(expr, s.Vars(expr))
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return v, nil
}

// Diagnostics returns the diagnostics reported so far, oldest first.
func (e *Engine) Diagnostics() []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Diagnostic(nil), e.diagnostics...)
}

// Graph returns the dependency graph.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Subscriptions returns the number of live subscriptions owned by path.
func (e *Engine) Subscriptions(p string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[p])
}

// Wait blocks until every data-source load started so far has finished.
func (e *Engine) Wait() {
	e.loads.Wait()
}

func (e *Engine) report(d *Diagnostic) {
	e.mu.Lock()
	e.diagnostics = append(e.diagnostics, *d)
	handler := e.onDiag
	e.mu.Unlock()

	e.logger.Warn("reaction diagnostic",
		"form", e.form.ID(),
		"code", d.Code,
		"path", d.Path,
		"rule", d.Rule,
		"message", d.Message)
	if handler != nil {
		handler(*d)
	}
}

// Release implements form.Linker. It stops every subscription and pending
// debounce timer owned by p and prunes p from the graph.
func (e *Engine) Release(p string) {
	e.mu.Lock()
	subs := e.subs[p]
	keys := e.rules[p]
	delete(e.subs, p)
	delete(e.rules, p)
	e.mu.Unlock()

	for _, dispose := range subs {
		dispose()
	}
	for _, k := range keys {
		e.graph.RemoveOwner(k)
	}
	e.graph.Prune(p)
}

// Dispose implements form.Linker. In-flight data-source loads see their
// context cancelled and are dropped.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	owners := make([]string, 0, len(e.rules))
	for p := range e.rules {
		owners = append(owners, p)
	}
	e.mu.Unlock()

	e.cancel()
	for _, p := range owners {
		e.Release(p)
	}
}

func (e *Engine) isDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}
