// Package form implements the form graph: the value Store, the Field,
// ArrayField and VoidField nodes, the EventBus and the middleware Pipeline.
//
// A Form is created with New and must be given a reactivity backend and a
// validator. Reactions declared on nodes are handed to a Linker built by
// the factory passed with WithLinker; without one they stay inert.
//
// CONCURRENCY:
//
// All Form, Field and Store methods are safe for concurrent use. No lock
// is held while user callbacks, event handlers, middlewares or the
// validator run, so these may call back into the form. Multi-step
// mutations that observers should see as one change belong in Batch.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/formlink/internal/path"
	"github.com/roach88/formlink/internal/reactive"
)

// Form owns the Store, the node registry, the event bus and the hook
// pipeline of one form.
type Form struct {
	id        string
	backend   reactive.Backend
	validator Validator
	evaluator Evaluator
	logger    *slog.Logger
	ids       IDGenerator

	store    *Store
	registry *registry
	events   *EventBus
	hooks    *Pipeline

	linkerFactory LinkerFactory
	linker        Linker

	seedValues  map[string]any
	seedInitial map[string]any

	mu         sync.RWMutex
	mode       Mode
	trigger    Trigger
	submitting bool
	validating bool

	disposed atomic.Bool
}

// Option configures a Form.
type Option func(*Form)

// WithBackend sets the reactivity backend. Required.
func WithBackend(b reactive.Backend) Option {
	return func(f *Form) {
		f.backend = b
	}
}

// WithValidator sets the validator. Required.
func WithValidator(v Validator) Option {
	return func(f *Form) {
		f.validator = v
	}
}

// WithEvaluator sets the expression evaluator used by reactions.
func WithEvaluator(e Evaluator) Option {
	return func(f *Form) {
		f.evaluator = e
	}
}

// WithLinker sets the factory building the form's linker.
func WithLinker(factory LinkerFactory) Option {
	return func(f *Form) {
		f.linkerFactory = factory
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Form) {
		f.logger = l
	}
}

// WithIDGenerator sets the identity generator for the form and its nodes.
func WithIDGenerator(g IDGenerator) Option {
	return func(f *Form) {
		f.ids = g
	}
}

// WithID fixes the form identity.
func WithID(id string) Option {
	return func(f *Form) {
		f.id = id
	}
}

// WithValues seeds the value tree. Initial values fill keys it lacks.
func WithValues(v map[string]any) Option {
	return func(f *Form) {
		f.seedValues = v
	}
}

// WithInitialValues seeds the initial value tree.
func WithInitialValues(v map[string]any) Option {
	return func(f *Form) {
		f.seedInitial = v
	}
}

// WithMode sets the form mode.
func WithMode(m Mode) Option {
	return func(f *Form) {
		f.mode = m
	}
}

// WithValidateTrigger sets when fields validate on their own.
func WithValidateTrigger(t Trigger) Option {
	return func(f *Form) {
		f.trigger = t
	}
}

// New creates a form.
func New(opts ...Option) (*Form, error) {
	f := &Form{
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
		registry: newRegistry(),
		events:   NewEventBus(),
		hooks:    NewPipeline(),
		mode:     ModeEditable,
		trigger:  TriggerOnInput,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.backend == nil {
		return nil, ErrMissingBackend
	}
	if f.validator == nil {
		return nil, ErrMissingValidator
	}
	if f.id == "" {
		f.id = f.ids.Generate()
	}

	values := cloneMap(f.seedInitial)
	mergeInto(values, cloneMap(f.seedValues))
	f.store = NewStore(f.backend, values, f.seedInitial)
	f.seedValues, f.seedInitial = nil, nil

	if f.linkerFactory != nil {
		f.linker = f.linkerFactory(f)
	}

	f.logger.Debug("form created", "form", f.id)
	f.emit(EventFormInit, nil)
	return f, nil
}

// ID returns the form identity.
func (f *Form) ID() string { return f.id }

// Backend returns the reactivity backend.
func (f *Form) Backend() reactive.Backend { return f.backend }

// Store returns the value store.
func (f *Form) Store() *Store { return f.store }

// Events returns the event bus.
func (f *Form) Events() *EventBus { return f.events }

// Hooks returns the middleware pipeline.
func (f *Form) Hooks() *Pipeline { return f.hooks }

// Evaluator returns the expression evaluator, which may be nil.
func (f *Form) Evaluator() Evaluator { return f.evaluator }

// Logger returns the form logger.
func (f *Form) Logger() *slog.Logger { return f.logger }

// Linker returns the linker, which may be nil.
func (f *Form) Linker() Linker { return f.linker }

// Mode returns the form mode.
func (f *Form) Mode() Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// SetMode changes the form mode.
func (f *Form) SetMode(m Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = m
}

// ValidateTrigger returns when fields validate on their own.
func (f *Form) ValidateTrigger() Trigger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trigger
}

// SetValidateTrigger changes when fields validate on their own.
func (f *Form) SetValidateTrigger(t Trigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trigger = t
}

// Submitting reports whether a submit is running.
func (f *Form) Submitting() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.submitting
}

// Validating reports whether a form validation is running.
func (f *Form) Validating() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.validating
}

// Batch runs fn as one backend batch.
func (f *Form) Batch(fn func()) {
	f.backend.Batch(fn)
}

// Values returns a deep copy of the value tree.
func (f *Form) Values() map[string]any {
	return f.store.Values()
}

// InitialValues returns a deep copy of the initial value tree.
func (f *Form) InitialValues() map[string]any {
	return f.store.InitialValues()
}

// Value returns the value at p.
func (f *Form) Value(p string) (any, bool) {
	return f.store.Get(p)
}

// CreateField creates or returns the field at props' path.
func (f *Form) CreateField(props Props) (*Field, error) {
	n, err := f.createNode(props, KindField)
	if n == nil {
		return nil, err
	}
	fd, ok := n.(*Field)
	if !ok {
		return nil, fmt.Errorf("create field %s: %w", n.Path(), ErrKindMismatch)
	}
	return fd, err
}

// CreateArrayField creates or returns the array field at props' path.
func (f *Form) CreateArrayField(props Props) (*ArrayField, error) {
	n, err := f.createNode(props, KindArray)
	if n == nil {
		return nil, err
	}
	a, ok := n.(*ArrayField)
	if !ok {
		return nil, fmt.Errorf("create array field %s: %w", n.Path(), ErrKindMismatch)
	}
	return a, err
}

// CreateVoidField creates or returns the void field at props' path.
func (f *Form) CreateVoidField(props Props) (*VoidField, error) {
	n, err := f.createNode(props, KindVoid)
	if n == nil {
		return nil, err
	}
	v, ok := n.(*VoidField)
	if !ok {
		return nil, fmt.Errorf("create void field %s: %w", n.Path(), ErrKindMismatch)
	}
	return v, err
}

func (f *Form) createNode(props Props, kind Kind) (Node, error) {
	if f.disposed.Load() {
		return nil, ErrDisposed
	}
	return f.hooks.RunCreateField(props, func(p Props) (Node, error) {
		return f.buildNode(p, kind)
	})
}

func (f *Form) buildNode(props Props, kind Kind) (Node, error) {
	p := props.Path()
	if p == "" {
		return nil, ErrInvalidPath
	}
	if existing, ok := f.registry.get(p); ok {
		if existing.Kind() != kind {
			return nil, fmt.Errorf("create %s %s: %w", kind, p, ErrKindMismatch)
		}
		return existing, nil
	}

	var n Node
	switch kind {
	case KindArray:
		n = newArrayField(f, props)
	case KindVoid:
		n = newVoidField(f, props)
	default:
		n = newField(f, props)
	}
	n = f.backend.Observe(n).(Node)

	registered, added := f.registry.add(n)
	if !added {
		return registered, nil
	}

	var seedErr error
	f.Batch(func() {
		if kind != KindVoid {
			seedErr = f.seedValue(p, props, kind)
		}
		f.backend.Notify(registryKey)
	})
	if seedErr != nil {
		f.logger.Warn("field value seeding failed", "form", f.id, "path", p, "error", seedErr)
	}

	f.logger.Debug("node created", "form", f.id, "path", p, "kind", kind)
	f.events.Emit(Event{
		Type:    EventFieldInit,
		FormID:  f.id,
		Path:    p,
		Payload: map[string]any{"kind": string(kind)},
	})

	if f.linker != nil && len(n.Reactions()) > 0 {
		if err := f.linker.Activate(n); err != nil {
			return n, fmt.Errorf("activate reactions %s: %w", p, err)
		}
	}
	return n, nil
}

func (f *Form) seedValue(p string, props Props, kind Kind) error {
	if props.InitialValue != nil {
		if err := f.store.SetInitial(p, props.InitialValue); err != nil {
			return err
		}
	}
	if props.Value != nil {
		return f.store.Set(p, props.Value)
	}
	if cur, ok := f.store.Get(p); ok && cur != nil {
		return nil
	}
	if init, ok := f.store.Initial(p); ok && init != nil {
		return f.store.Set(p, init)
	}
	if kind == KindArray {
		return f.store.Set(p, []any{})
	}
	return nil
}

// Node returns the node registered at p.
func (f *Form) Node(p string) (Node, bool) {
	return f.registry.get(p)
}

// Field returns the value-bearing field at p. For an array field this is
// its underlying Field.
func (f *Form) Field(p string) (*Field, bool) {
	n, ok := f.registry.get(p)
	if !ok {
		return nil, false
	}
	return valueField(n)
}

// ArrayField returns the array field at p.
func (f *Form) ArrayField(p string) (*ArrayField, bool) {
	n, ok := f.registry.get(p)
	if !ok {
		return nil, false
	}
	a, ok := n.(*ArrayField)
	return a, ok
}

// VoidField returns the void field at p.
func (f *Form) VoidField(p string) (*VoidField, bool) {
	n, ok := f.registry.get(p)
	if !ok {
		return nil, false
	}
	v, ok := n.(*VoidField)
	return v, ok
}

// Nodes returns every registered node in creation order.
func (f *Form) Nodes() []Node {
	return f.registry.list()
}

// Query returns the nodes whose path matches pattern.
func (f *Form) Query(pattern string) []Node {
	return f.registry.query(pattern)
}

// QueryFields returns the value-bearing fields whose path matches pattern.
func (f *Form) QueryFields(pattern string) []*Field {
	out := []*Field{}
	for _, n := range f.registry.query(pattern) {
		if fd, ok := valueField(n); ok {
			out = append(out, fd)
		}
	}
	return out
}

// Fields returns every value-bearing field in creation order.
func (f *Form) Fields() []*Field {
	out := []*Field{}
	for _, n := range f.registry.list() {
		if fd, ok := valueField(n); ok {
			out = append(out, fd)
		}
	}
	return out
}

func valueField(n Node) (*Field, bool) {
	switch v := n.(type) {
	case *Field:
		return v, true
	case *ArrayField:
		return v.Field, true
	}
	return nil, false
}

// RemoveField removes the node at p and every node below it, and releases
// their reactions. Removing an unknown path is a no-op.
func (f *Form) RemoveField(p string) {
	f.Batch(func() {
		f.purgeUnder(p)
		f.removeOne(p)
	})
}

// purgeUnder removes every node strictly below prefix.
func (f *Form) purgeUnder(prefix string) {
	for _, p := range f.registry.under(prefix) {
		f.removeOne(p)
	}
}

func (f *Form) removeOne(p string) {
	n, ok := f.registry.remove(p)
	if !ok {
		return
	}
	n.dispose()
	if f.linker != nil {
		f.linker.Release(p)
	}
	f.backend.Notify(registryKey)
	f.logger.Debug("node removed", "form", f.id, "path", p)
}

// SetValues writes values with the given strategy as one batch.
func (f *Form) SetValues(ctx context.Context, values map[string]any, strategy SetValuesStrategy) error {
	return f.hooks.Run(ctx, HookSetValues, func(ctx context.Context) error {
		switch strategy {
		case StrategyMerge, "":
			f.Batch(func() { f.store.Merge(values) })
		case StrategyShallow:
			f.Batch(func() { f.store.Shallow(values) })
		case StrategyReplace:
			f.Batch(func() { f.store.Replace(values) })
		default:
			return fmt.Errorf("set values: unknown strategy %q", strategy)
		}
		f.emit(EventFormValuesChange, map[string]any{"strategy": string(strategy)})
		return nil
	})
}

// SetInitialValues merges values into the initial tree and fills top-level
// values that are still unset.
func (f *Form) SetInitialValues(values map[string]any) {
	f.store.MergeInitial(values)
	f.Batch(func() {
		for k, v := range values {
			if cur, ok := f.store.Get(k); !ok || cur == nil {
				_ = f.store.Set(k, v)
			}
		}
	})
}

// Errors returns the errors of every field that has some.
func (f *Form) Errors() []Feedback {
	out := []Feedback{}
	for _, fd := range f.Fields() {
		if errs := fd.Errors(); len(errs) > 0 {
			out = append(out, Feedback{Path: fd.Path(), Messages: errs})
		}
	}
	return out
}

// Warnings returns the warnings of every field that has some.
func (f *Form) Warnings() []Feedback {
	out := []Feedback{}
	for _, fd := range f.Fields() {
		if ws := fd.Warnings(); len(ws) > 0 {
			out = append(out, Feedback{Path: fd.Path(), Messages: ws})
		}
	}
	return out
}

// Snapshot describes the form as plain data for expression scopes.
func (f *Form) Snapshot() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]any{
		"id":         f.id,
		"mode":       string(f.mode),
		"submitting": f.submitting,
		"validating": f.validating,
	}
}

// Mount announces that the form is shown.
func (f *Form) Mount() { f.emit(EventFormMount, nil) }

// Unmount announces that the form is hidden.
func (f *Form) Unmount() { f.emit(EventFormUnmount, nil) }

// Dispose tears down the linker, every node and every event handler.
// Calling it more than once is safe.
func (f *Form) Dispose() {
	if !f.disposed.CompareAndSwap(false, true) {
		return
	}
	if f.linker != nil {
		f.linker.Dispose()
	}
	for _, n := range f.registry.list() {
		f.registry.remove(n.Path())
		n.dispose()
	}
	f.events.Clear()
	f.logger.Debug("form disposed", "form", f.id)
}

// Disposed reports whether Dispose was called.
func (f *Form) Disposed() bool {
	return f.disposed.Load()
}

func (f *Form) emit(t EventType, payload map[string]any) {
	f.events.Emit(Event{Type: t, FormID: f.id, Payload: payload})
}

func (f *Form) setFlag(flag *bool, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*flag = v
}

// matchAny reports whether p matches one of patterns.
func matchAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if path.Match(pat, p) {
			return true
		}
	}
	return false
}
