// Package reactive defines the reactivity backend the form engine runs on
// and ships the default in-process implementation.
//
// The engine depends only on Backend. Reads that must be observed go through
// a Tracker handed to track functions, and writers announce changes with
// Notify. Keys are dot-delimited paths; a change to a key is seen by every
// reaction that tracked the key itself, one of its ancestors, or one of its
// descendants.
package reactive

import "time"

// Tracker records the keys a track function depends on.
type Tracker interface {
	Track(key string)
}

// Disposer tears down a subscription. Calling it more than once is safe.
type Disposer func()

// ReactionOptions tunes a reaction.
type ReactionOptions struct {
	// FireImmediately runs the effect once with the initial tracked value.
	FireImmediately bool

	// Equals decides whether a recomputed value counts as a change.
	// Defaults to reflect.DeepEqual.
	Equals func(a, b any) bool

	// Debounce delays the effect until no change arrived for this long.
	Debounce time.Duration
}

// Backend is the capability set the form engine needs from a reactivity
// runtime.
type Backend interface {
	// Observe makes v observable. Callers must use the returned value.
	Observe(v any) any

	// Batch runs fn and defers reaction delivery until the outermost batch
	// returns.
	Batch(fn func())

	// Action wraps fn so that each call runs as one batch.
	Action(fn func()) func()

	// Reaction re-runs track whenever a tracked key changes and calls
	// effect when the returned value differs from the previous one.
	Reaction(track func(Tracker) any, effect func(value, old any), opts ReactionOptions) Disposer

	// Autorun runs fn now and again whenever a key it tracked changes.
	Autorun(fn func(Tracker)) Disposer

	// Notify announces that the value under key changed.
	Notify(key string)
}

// Track records key on t when t is non-nil.
func Track(t Tracker, key string) {
	if t != nil {
		t.Track(key)
	}
}
