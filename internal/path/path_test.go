package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoin(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Equal(t, []string{"a", "0", "b"}, Parse("a.0.b"))
	assert.Equal(t, "a.0.b", Join("a", "", "0", "b"))
	assert.Equal(t, "", Join())
	assert.Equal(t, "a.0", Parent("a.0.b"))
	assert.Equal(t, "", Parent("a"))
	assert.Equal(t, "b", Base("a.0.b"))
	assert.Equal(t, "a", Base("a"))
}

func TestIndex(t *testing.T) {
	n, ok := Index("12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	for _, seg := range []string{"", "a", "-1", "1a", "*"} {
		_, ok := Index(seg)
		assert.False(t, ok, seg)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"a.*.b", "a.0.b", true},
		{"a.*.b", "a.x.b", true},
		{"a.*.b", "a.0.c", false},
		{"a.*", "a.0.b", false},
		{"a.*.b", "a.b", false},
		{"*", "a", true},
		{"a", "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.path))
		})
	}

	assert.True(t, IsPattern("a.*.b"))
	assert.False(t, IsPattern("a.b"))
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("arr.1.name", "arr"))
	assert.True(t, HasPrefix("arr", "arr"))
	assert.False(t, HasPrefix("array.1", "arr"))
	assert.True(t, HasPrefix("x", ""))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "items.0.b", Resolve("items.0.a", ".b"))
	assert.Equal(t, "items.total", Resolve("items.0.a", "..total"))
	assert.Equal(t, "b", Resolve("a", ".b"))
	assert.Equal(t, "x.y", Resolve("items.0.a", "x.y"))
}

func TestGet(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{"b": []any{1, map[string]any{"c": "x"}}},
		"typed": map[string]int{"n": 3},
		"list":  []string{"p", "q"},
	}

	v, ok := Get(root, "a.b.1.c")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = Get(root, "typed.n")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = Get(root, "list.1")
	require.True(t, ok)
	assert.Equal(t, "q", v)

	_, ok = Get(root, "a.b.5")
	assert.False(t, ok)
	_, ok = Get(root, "a.missing.c")
	assert.False(t, ok)

	v, ok = Get(root, "")
	require.True(t, ok)
	assert.Equal(t, root, v)

	assert.True(t, Exists(root, "a.b.0"))
	assert.False(t, Exists(root, "nope"))
}

func TestSet_CreatesContainers(t *testing.T) {
	root := map[string]any{}

	require.NoError(t, Set(root, "contacts.0.name", "ada"))
	assert.Equal(t, map[string]any{
		"contacts": []any{map[string]any{"name": "ada"}},
	}, root)

	require.NoError(t, Set(root, "contacts.1.name", "bob"))
	v, _ := Get(root, "contacts.1.name")
	assert.Equal(t, "bob", v)

	require.NoError(t, Set(root, "contacts.0.name", "eve"))
	v, _ = Get(root, "contacts.0.name")
	assert.Equal(t, "eve", v)
}

func TestSet_Errors(t *testing.T) {
	root := map[string]any{"s": "scalar", "l": []any{}}

	assert.ErrorIs(t, Set(root, "", 1), ErrEmptyPath)
	assert.ErrorIs(t, Set(root, "s.x", 1), ErrNotContainer)
	assert.ErrorIs(t, Set(root, "l.3", 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, Set(root, "l.x", 1), ErrNotContainer)
}

func TestDelete(t *testing.T) {
	root := map[string]any{
		"arr": []any{"a", "b", "c"},
		"m":   map[string]any{"k": 1, "j": 2},
	}

	Delete(root, "arr.1")
	assert.Equal(t, []any{"a", "c"}, root["arr"])

	Delete(root, "m.k")
	assert.Equal(t, map[string]any{"j": 2}, root["m"])

	Delete(root, "m.missing.deep")
	Delete(root, "arr.9")
	Delete(root, "")
	assert.Len(t, root["arr"], 2)
}

func TestRow(t *testing.T) {
	row, idx, ok := Row("orders.2.lines.1.qty")
	require.True(t, ok)
	assert.Equal(t, "orders.2.lines.1", row)
	assert.Equal(t, 1, idx)

	row, idx, ok = Row("orders.2")
	require.True(t, ok)
	assert.Equal(t, "orders.2", row)
	assert.Equal(t, 2, idx)

	_, _, ok = Row("a.b")
	assert.False(t, ok)
}
