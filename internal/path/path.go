// Package path addresses values inside a nested form value tree.
//
// A path is a dot-delimited list of segments such as "contacts.0.name".
// Numeric segments address slice elements; every other segment addresses a
// map key. The empty path denotes the root.
//
// Containers are map[string]any and []any, which is what the JSON, YAML and
// CUE decoders used by this module produce. Get also walks other map and
// slice kinds through reflection so callers may hand in typed Go values.
package path

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Wildcard matches exactly one path segment in a pattern.
const Wildcard = "*"

// Separator delimits path segments.
const Separator = "."

var (
	// ErrEmptyPath is returned when a write targets the root.
	ErrEmptyPath = errors.New("empty path")

	// ErrNotContainer is returned when a write walks through a scalar.
	ErrNotContainer = errors.New("not a container")

	// ErrIndexOutOfRange is returned when a slice write skips past the end.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Parse splits p into its segments. The root path yields nil.
func Parse(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, Separator)
}

// Join builds a path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, Separator)
}

// Parent returns p without its last segment.
func Parent(p string) string {
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the last segment of p.
func Base(p string) string {
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return p
	}
	return p[i+1:]
}

// Index reports whether seg is an array index and returns it.
func Index(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsPattern reports whether p contains a wildcard segment.
func IsPattern(p string) bool {
	for _, seg := range Parse(p) {
		if seg == Wildcard {
			return true
		}
	}
	return false
}

// Match reports whether p matches pattern segment by segment.
func Match(pattern, p string) bool {
	ps := Parse(pattern)
	segs := Parse(p)
	if len(ps) != len(segs) {
		return false
	}
	for i, seg := range ps {
		if seg != Wildcard && seg != segs[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p equals prefix or lies underneath it.
func HasPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+Separator)
}

// Resolve turns a watch path declared on the field at self into an absolute
// path. A path with n leading dots is resolved against the n-th ancestor of
// self, so ".b" on "items.0.a" yields "items.0.b".
func Resolve(self, p string) string {
	if !strings.HasPrefix(p, Separator) {
		return p
	}
	base := self
	rest := p
	for strings.HasPrefix(rest, Separator) {
		base = Parent(base)
		rest = rest[1:]
	}
	return Join(base, rest)
}

// Get returns the value at p inside root.
func Get(root any, p string) (any, bool) {
	cur := root
	for _, seg := range Parse(p) {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Exists reports whether a value is present at p.
func Exists(root any, p string) bool {
	_, ok := Get(root, p)
	return ok
}

func child(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, ok := Index(seg)
		if !ok || i >= len(c) {
			return nil, false
		}
		return c[i], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, ok := Index(seg)
		if !ok || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

// Set writes v at p inside root, creating intermediate containers as needed.
// A missing intermediate container is a slice when the following segment is
// numeric and a map otherwise. Writing one past the end of a slice appends.
func Set(root map[string]any, p string, v any) error {
	segs := Parse(p)
	if len(segs) == 0 {
		return ErrEmptyPath
	}
	if _, err := setIn(root, segs, v); err != nil {
		return fmt.Errorf("set %q: %w", p, err)
	}
	return nil
}

func setIn(cur any, segs []string, v any) (any, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch c := cur.(type) {
	case map[string]any:
		if last {
			c[seg] = v
			return c, nil
		}
		next, err := setIn(ensure(c[seg], segs[1]), segs[1:], v)
		if err != nil {
			return nil, err
		}
		c[seg] = next
		return c, nil
	case []any:
		i, ok := Index(seg)
		if !ok {
			return nil, fmt.Errorf("segment %q: %w", seg, ErrNotContainer)
		}
		if i > len(c) {
			return nil, fmt.Errorf("segment %q: %w", seg, ErrIndexOutOfRange)
		}
		if i == len(c) {
			c = append(c, nil)
		}
		if last {
			c[i] = v
			return c, nil
		}
		next, err := setIn(ensure(c[i], segs[1]), segs[1:], v)
		if err != nil {
			return nil, err
		}
		c[i] = next
		return c, nil
	}
	return nil, fmt.Errorf("segment %q: %w", seg, ErrNotContainer)
}

func ensure(cur any, nextSeg string) any {
	if cur != nil {
		return cur
	}
	if _, ok := Index(nextSeg); ok {
		return []any{}
	}
	return map[string]any{}
}

// Delete removes the value at p. Slice elements are spliced out so later
// elements shift down by one. Deleting a missing path is a no-op.
func Delete(root map[string]any, p string) {
	segs := Parse(p)
	if len(segs) == 0 {
		return
	}
	deleteIn(root, segs)
}

func deleteIn(cur any, segs []string) any {
	seg := segs[0]
	last := len(segs) == 1

	switch c := cur.(type) {
	case map[string]any:
		if last {
			delete(c, seg)
			return c
		}
		if next, ok := c[seg]; ok {
			c[seg] = deleteIn(next, segs[1:])
		}
		return c
	case []any:
		i, ok := Index(seg)
		if !ok || i >= len(c) {
			return c
		}
		if last {
			out := make([]any, 0, len(c)-1)
			out = append(out, c[:i]...)
			return append(out, c[i+1:]...)
		}
		c[i] = deleteIn(c[i], segs[1:])
		return c
	}
	return cur
}

// Row locates the nearest array element enclosing p. It walks backwards
// from the end of p to the last numeric segment and returns the path up to
// and including it together with the index.
func Row(p string) (rowPath string, index int, ok bool) {
	segs := Parse(p)
	for i := len(segs) - 1; i >= 0; i-- {
		if n, isIdx := Index(segs[i]); isIdx {
			return Join(segs[:i+1]...), n, true
		}
	}
	return "", 0, false
}
