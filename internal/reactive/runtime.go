package reactive

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mohae/deepcopy"
)

// Runtime is the default Backend. Values stay plain Go data; writers call
// Notify and reactions re-run their track functions when a related key
// changed.
//
// Delivery model:
//   - Notify outside a batch flushes immediately on the calling goroutine.
//   - Notify inside a batch, or while another flush is running, only marks
//     reactions pending; the running flush or the outermost batch picks
//     them up.
//   - A flush runs pending reactions in registration order and loops until
//     nothing is pending. Each reaction may run at most maxSteps times per
//     flush; one that keeps rescheduling itself is dropped from that flush
//     while the others run to completion.
//
// Runtime locks are never held while user code runs, so effects may write
// values and start batches freely.
type Runtime struct {
	mu        sync.Mutex
	nextID    int64
	reactions map[int64]*reaction
	pending   map[int64]struct{}
	depth     int
	flushing  bool

	// byRoot indexes reactions by the first segment of each tracked key.
	// Reactions tracking the root key "" are kept in anyKey.
	byRoot map[string]map[int64]struct{}
	anyKey map[int64]struct{}

	logger   *slog.Logger
	maxSteps int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used for recovered panics and quota errors.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithMaxSteps bounds how often a single reaction may run within one flush.
func WithMaxSteps(n int) Option {
	return func(r *Runtime) {
		r.maxSteps = n
	}
}

// NewRuntime creates a runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		reactions: make(map[int64]*reaction),
		pending:   make(map[int64]struct{}),
		byRoot:    make(map[string]map[int64]struct{}),
		anyKey:    make(map[int64]struct{}),
		logger:    slog.Default(),
		maxSteps:  DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Backend = (*Runtime)(nil)

// Observe returns v unchanged; Runtime observes through Notify instead of
// wrapping values.
func (r *Runtime) Observe(v any) any {
	return v
}

// Batch implements Backend.
func (r *Runtime) Batch(fn func()) {
	r.mu.Lock()
	r.depth++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.depth--
		start := r.claimFlushLocked()
		r.mu.Unlock()
		if start {
			r.flush()
		}
	}()

	fn()
}

// Action implements Backend.
func (r *Runtime) Action(fn func()) func() {
	return func() {
		r.Batch(fn)
	}
}

// Notify implements Backend.
func (r *Runtime) Notify(key string) {
	r.mu.Lock()
	r.markLocked(key)
	start := r.claimFlushLocked()
	r.mu.Unlock()

	if start {
		r.flush()
	}
}

// markLocked marks every reaction related to key as pending. A key only
// relates to keys sharing its first segment, so the index narrows the
// candidates before dependsOn checks them.
func (r *Runtime) markLocked(key string) {
	mark := func(ids map[int64]struct{}) {
		for id := range ids {
			if re, ok := r.reactions[id]; ok && re.dependsOn(key) {
				r.pending[id] = struct{}{}
			}
		}
	}
	if key == "" {
		mark(r.anyKey)
		for _, ids := range r.byRoot {
			mark(ids)
		}
		return
	}
	mark(r.anyKey)
	mark(r.byRoot[rootOf(key)])
}

// indexLocked replaces the indexed keys of re with deps.
func (r *Runtime) indexLocked(re *reaction, deps keySet) {
	r.unindexLocked(re)
	for dep := range deps {
		if dep == "" {
			r.anyKey[re.id] = struct{}{}
			continue
		}
		root := rootOf(dep)
		ids := r.byRoot[root]
		if ids == nil {
			ids = make(map[int64]struct{})
			r.byRoot[root] = ids
		}
		ids[re.id] = struct{}{}
	}
	re.deps = deps
}

func (r *Runtime) unindexLocked(re *reaction) {
	for dep := range re.deps {
		if dep == "" {
			delete(r.anyKey, re.id)
			continue
		}
		root := rootOf(dep)
		if ids := r.byRoot[root]; ids != nil {
			delete(ids, re.id)
			if len(ids) == 0 {
				delete(r.byRoot, root)
			}
		}
	}
	re.deps = nil
}

func rootOf(key string) string {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}

// claimFlushLocked reports whether the caller should start a flush and
// marks the runtime as flushing if so.
func (r *Runtime) claimFlushLocked() bool {
	if r.depth > 0 || r.flushing || len(r.pending) == 0 {
		return false
	}
	r.flushing = true
	return true
}

func (r *Runtime) flush() {
	quotas := make(map[int64]*QuotaEnforcer)
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.flushing = false
			r.mu.Unlock()
			return
		}
		ids := make([]int64, 0, len(r.pending))
		for id := range r.pending {
			ids = append(ids, id)
		}
		r.pending = make(map[int64]struct{})
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		batch := make([]*reaction, 0, len(ids))
		for _, id := range ids {
			if re, ok := r.reactions[id]; ok {
				batch = append(batch, re)
			}
		}
		r.mu.Unlock()

		for _, re := range batch {
			q, ok := quotas[re.id]
			if !ok {
				q = NewQuotaEnforcer(r.maxSteps)
				quotas[re.id] = q
			}
			if err := q.Check("reaction flush"); err != nil {
				if q.Current() == r.maxSteps+1 {
					r.logger.Error("reaction dropped from flush", "reaction", re.id, "error", err)
				}
				continue
			}
			re.run(false)
		}
	}
}

// Reaction implements Backend.
func (r *Runtime) Reaction(track func(Tracker) any, effect func(value, old any), opts ReactionOptions) Disposer {
	if opts.Equals == nil {
		opts.Equals = reflect.DeepEqual
	}

	r.mu.Lock()
	r.nextID++
	re := &reaction{
		id:     r.nextID,
		rt:     r,
		track:  track,
		effect: effect,
		opts:   opts,
	}
	if opts.Debounce > 0 {
		re.debounce = NewDebouncer(opts.Debounce)
	}
	r.reactions[re.id] = re
	r.mu.Unlock()

	// The first run happens inside a batch so that writes made by an
	// immediate effect are delivered after the run releases its lock.
	r.Batch(func() {
		re.run(true)
	})

	return re.dispose
}

// Autorun implements Backend.
func (r *Runtime) Autorun(fn func(Tracker)) Disposer {
	return r.Reaction(func(t Tracker) any {
		fn(t)
		return nil
	}, nil, ReactionOptions{})
}

// Len returns the number of live reactions.
func (r *Runtime) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reactions)
}

type reaction struct {
	id     int64
	rt     *Runtime
	track  func(Tracker) any
	effect func(value, old any)
	opts   ReactionOptions

	// deps is guarded by rt.mu.
	deps map[string]struct{}

	runMu    sync.Mutex
	value    any
	hasValue bool

	debounce *Debouncer
	disposed atomic.Bool
}

type keySet map[string]struct{}

func (k keySet) Track(key string) {
	k[key] = struct{}{}
}

// dependsOn must be called with rt.mu held.
func (re *reaction) dependsOn(key string) bool {
	for dep := range re.deps {
		if related(dep, key) {
			return true
		}
	}
	return false
}

// related reports whether a change to key may change the value under dep.
func related(dep, key string) bool {
	switch {
	case dep == key, dep == "", key == "":
		return true
	case strings.HasPrefix(dep, key+"."):
		return true
	case strings.HasPrefix(key, dep+"."):
		return true
	}
	return false
}

func (re *reaction) run(initial bool) {
	if re.disposed.Load() {
		return
	}

	re.runMu.Lock()
	defer re.runMu.Unlock()

	deps := keySet{}
	value, ok := re.safeTrack(deps)

	re.rt.mu.Lock()
	if !re.disposed.Load() {
		re.rt.indexLocked(re, deps)
	}
	re.rt.mu.Unlock()

	if !ok {
		return
	}

	old := re.value
	changed := !re.hasValue || !re.opts.Equals(old, value)
	re.value = deepcopy.Copy(value)
	re.hasValue = true

	if re.effect == nil {
		return
	}
	if initial && !re.opts.FireImmediately {
		return
	}
	if !initial && !changed {
		return
	}

	if re.debounce != nil {
		re.debounce.Call(func() {
			if !re.disposed.Load() {
				re.safeEffect(value, old)
			}
		})
		return
	}
	re.safeEffect(value, old)
}

func (re *reaction) safeTrack(t Tracker) (value any, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			re.rt.logger.Error("reaction track panicked",
				"reaction", re.id,
				"panic", fmt.Sprint(p))
			ok = false
		}
	}()
	return re.track(t), true
}

func (re *reaction) safeEffect(value, old any) {
	defer func() {
		if p := recover(); p != nil {
			re.rt.logger.Error("reaction effect panicked",
				"reaction", re.id,
				"panic", fmt.Sprint(p))
		}
	}()
	re.effect(value, old)
}

func (re *reaction) dispose() {
	if !re.disposed.CompareAndSwap(false, true) {
		return
	}
	if re.debounce != nil {
		re.debounce.Cancel()
	}
	re.rt.mu.Lock()
	re.rt.unindexLocked(re)
	delete(re.rt.reactions, re.id)
	delete(re.rt.pending, re.id)
	re.rt.mu.Unlock()
}
