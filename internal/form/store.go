package form

import (
	"sync"

	"github.com/mohae/deepcopy"

	"github.com/roach88/formlink/internal/path"
	"github.com/roach88/formlink/internal/reactive"
)

// Store holds the value tree and the initial value tree of a form. It is
// the single source of truth for field values.
//
// Every read returns a deep copy and every write stores one, so no caller
// can alias the stored tree. Writes announce the changed path to the
// backend after the lock is released.
type Store struct {
	mu      sync.RWMutex
	backend reactive.Backend
	values  map[string]any
	initial map[string]any
}

// NewStore creates a store seeded with deep copies of values and initial.
func NewStore(backend reactive.Backend, values, initial map[string]any) *Store {
	return &Store{
		backend: backend,
		values:  cloneMap(values),
		initial: cloneMap(initial),
	}
}

// Get returns the value at p.
func (s *Store) Get(p string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := path.Get(s.values, p)
	if !ok {
		return nil, false
	}
	return deepcopy.Copy(v), true
}

// Track reads the value at p and records p on t.
func (s *Store) Track(t reactive.Tracker, p string) any {
	reactive.Track(t, p)
	v, _ := s.Get(p)
	return v
}

// Exists reports whether a value is present at p.
func (s *Store) Exists(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return path.Exists(s.values, p)
}

// Set writes v at p.
func (s *Store) Set(p string, v any) error {
	s.mu.Lock()
	err := path.Set(s.values, p, deepcopy.Copy(v))
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.backend.Notify(p)
	return nil
}

// Delete removes the value at p.
func (s *Store) Delete(p string) {
	s.mu.Lock()
	path.Delete(s.values, p)
	s.mu.Unlock()
	s.backend.Notify(p)
}

// Values returns a deep copy of the value tree.
func (s *Store) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.values)
}

// Merge deep-merges m into the existing value tree.
func (s *Store) Merge(m map[string]any) {
	s.mu.Lock()
	mergeInto(s.values, cloneMap(m))
	s.mu.Unlock()
	s.backend.Notify("")
}

// Shallow overwrites the top-level keys present in m.
func (s *Store) Shallow(m map[string]any) {
	s.mu.Lock()
	for k, v := range cloneMap(m) {
		s.values[k] = v
	}
	s.mu.Unlock()
	s.backend.Notify("")
}

// Replace swaps the value tree for a copy of m.
func (s *Store) Replace(m map[string]any) {
	s.mu.Lock()
	s.values = cloneMap(m)
	s.mu.Unlock()
	s.backend.Notify("")
}

// Restore writes a deep copy of the initial tree onto the existing value
// tree: keys absent from the initial tree are dropped.
func (s *Store) Restore() {
	s.mu.Lock()
	snapshot := cloneMap(s.initial)
	for k := range s.values {
		if _, ok := snapshot[k]; !ok {
			delete(s.values, k)
		}
	}
	for k, v := range snapshot {
		s.values[k] = v
	}
	s.mu.Unlock()
	s.backend.Notify("")
}

// Clear sets every top-level value to the empty value of its kind. Nested
// values are not visited.
func (s *Store) Clear() {
	s.mu.Lock()
	for k, v := range s.values {
		s.values[k] = emptyOf(v)
	}
	s.mu.Unlock()
	s.backend.Notify("")
}

// Initial returns the initial value at p.
func (s *Store) Initial(p string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := path.Get(s.initial, p)
	if !ok {
		return nil, false
	}
	return deepcopy.Copy(v), true
}

// SetInitial writes the initial value at p.
func (s *Store) SetInitial(p string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return path.Set(s.initial, p, deepcopy.Copy(v))
}

// InitialValues returns a deep copy of the initial tree.
func (s *Store) InitialValues() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.initial)
}

// MergeInitial deep-merges m into the initial tree.
func (s *Store) MergeInitial(m map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mergeInto(s.initial, cloneMap(m))
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out, ok := deepcopy.Copy(m).(map[string]any)
	if !ok || out == nil {
		return map[string]any{}
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, sv := range src {
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeInto(dm, sm)
			continue
		}
		dst[k] = sv
	}
}

func emptyOf(v any) any {
	switch v.(type) {
	case map[string]any:
		return map[string]any{}
	case []any:
		return []any{}
	case string:
		return ""
	}
	return nil
}
