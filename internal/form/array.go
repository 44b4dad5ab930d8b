package form

import (
	"github.com/mohae/deepcopy"
)

// ArrayField is a Field holding a list with structural operations.
//
// Every operation except Push first removes the nodes registered under the
// array's path, because their indices would no longer address the same
// rows. Callers re-create row fields after the mutation.
type ArrayField struct {
	*Field

	minItems int
	maxItems int
	template any
	factory  func() any
}

func newArrayField(f *Form, props Props) *ArrayField {
	return &ArrayField{
		Field:    newField(f, props),
		minItems: props.MinItems,
		maxItems: props.MaxItems,
		template: deepcopy.Copy(props.ItemTemplate),
		factory:  props.ItemFactory,
	}
}

func (a *ArrayField) Kind() Kind { return KindArray }

// Items returns a copy of the current list.
func (a *ArrayField) Items() []any {
	items, _ := a.Value().([]any)
	if items == nil {
		return []any{}
	}
	return items
}

// Len returns the number of items.
func (a *ArrayField) Len() int {
	return len(a.Items())
}

// MinItems returns the lower bound.
func (a *ArrayField) MinItems() int { return a.minItems }

// MaxItems returns the upper bound; zero means unbounded.
func (a *ArrayField) MaxItems() int { return a.maxItems }

// CanAdd reports whether one more item fits.
func (a *ArrayField) CanAdd() bool {
	return a.maxItems <= 0 || a.Len() < a.maxItems
}

// CanRemove reports whether one item may be removed.
func (a *ArrayField) CanRemove() bool {
	n := a.Len()
	return n > 0 && n > a.minItems
}

// NewItem builds an item from the factory or the template.
func (a *ArrayField) NewItem() any {
	if a.factory != nil {
		return deepcopy.Copy(a.factory())
	}
	return deepcopy.Copy(a.template)
}

// Push appends items, or one new item when none are given. It is a no-op
// when the result would exceed the upper bound.
func (a *ArrayField) Push(items ...any) error {
	items = a.itemsOrNew(items)
	cur := a.Items()
	if a.maxItems > 0 && len(cur)+len(items) > a.maxItems {
		return nil
	}
	return a.SetValue(append(cur, cloneItems(items)...))
}

// Pop removes the last item.
func (a *ArrayField) Pop() error {
	if !a.CanRemove() {
		return nil
	}
	return a.mutate(func(cur []any) []any {
		return cur[:len(cur)-1]
	})
}

// Insert places items at index i. Out-of-range indices are clamped.
func (a *ArrayField) Insert(i int, items ...any) error {
	items = a.itemsOrNew(items)
	if a.maxItems > 0 && a.Len()+len(items) > a.maxItems {
		return nil
	}
	return a.mutate(func(cur []any) []any {
		i = clamp(i, 0, len(cur))
		out := make([]any, 0, len(cur)+len(items))
		out = append(out, cur[:i]...)
		out = append(out, cloneItems(items)...)
		return append(out, cur[i:]...)
	})
}

// Remove deletes the item at index i.
func (a *ArrayField) Remove(i int) error {
	if i < 0 || i >= a.Len() || !a.CanRemove() {
		return nil
	}
	return a.mutate(func(cur []any) []any {
		out := make([]any, 0, len(cur)-1)
		out = append(out, cur[:i]...)
		return append(out, cur[i+1:]...)
	})
}

// Shift removes the first item.
func (a *ArrayField) Shift() error {
	return a.Remove(0)
}

// Unshift prepends items.
func (a *ArrayField) Unshift(items ...any) error {
	return a.Insert(0, items...)
}

// Move relocates the item at from to index to.
func (a *ArrayField) Move(from, to int) error {
	n := a.Len()
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return nil
	}
	return a.mutate(func(cur []any) []any {
		item := cur[from]
		out := make([]any, 0, len(cur))
		out = append(out, cur[:from]...)
		out = append(out, cur[from+1:]...)
		rest := append([]any{item}, out[to:]...)
		return append(out[:to], rest...)
	})
}

// MoveUp swaps the item at i with its predecessor.
func (a *ArrayField) MoveUp(i int) error {
	return a.Move(i, i-1)
}

// MoveDown swaps the item at i with its successor.
func (a *ArrayField) MoveDown(i int) error {
	return a.Move(i, i+1)
}

// Clear removes every item.
func (a *ArrayField) Clear() error {
	return a.mutate(func([]any) []any {
		return []any{}
	})
}

// mutate purges row nodes, then writes the list produced by fn, all in one
// batch.
func (a *ArrayField) mutate(fn func(cur []any) []any) error {
	var err error
	a.form.Batch(func() {
		a.form.purgeUnder(a.path)
		err = a.SetValue(fn(a.Items()))
	})
	return err
}

func (a *ArrayField) itemsOrNew(items []any) []any {
	if len(items) == 0 {
		return []any{a.NewItem()}
	}
	return items
}

// Snapshot implements Node.
func (a *ArrayField) Snapshot() map[string]any {
	s := a.Field.Snapshot()
	s["length"] = a.Len()
	s["minItems"] = a.minItems
	s["maxItems"] = a.maxItems
	return s
}

func cloneItems(items []any) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = deepcopy.Copy(it)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
