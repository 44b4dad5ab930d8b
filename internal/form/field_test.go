package form

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowValidator blocks until its delay passes or the context ends. The
// value "bad" fails.
type slowValidator struct {
	delay time.Duration
	calls atomic.Int32
}

func (v *slowValidator) Validate(ctx context.Context, value any, _ []Rule, _ ValidateContext, _ Trigger) (ValidateResult, error) {
	v.calls.Add(1)
	select {
	case <-time.After(v.delay):
	case <-ctx.Done():
		return ValidateResult{}, ctx.Err()
	}
	if value == "bad" {
		return ValidateResult{Errors: []string{"bad value"}}, nil
	}
	return ValidateResult{}, nil
}

// =============================================================================
// Rules
// =============================================================================

func TestField_RequiredRuleSeeded(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "a", Required: true, Rules: []Rule{{Pattern: "^x"}}})

	rules := fd.Rules()
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Required)
	assert.Equal(t, "^x", rules[1].Pattern)
}

func TestField_RequiredRuleNotDuplicated(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{
		Name:     "a",
		Required: true,
		Rules:    []Rule{{Required: true, Message: "custom"}},
	})

	rules := fd.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "custom", rules[0].Message)
}

func TestField_SetRequired(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "a", Rules: []Rule{{Required: true, Message: "keep me"}}})

	fd.SetRequired(true)
	assert.Len(t, fd.Rules(), 1)

	fd.SetRequired(false)
	assert.False(t, fd.Required())
	assert.Len(t, fd.Rules(), 1, "user-declared required rule stays")

	g := mustField(t, f, Props{Name: "b"})
	g.SetRequired(true)
	assert.True(t, g.Required())
	assert.Len(t, g.Rules(), 1)
	g.SetRequired(false)
	assert.Empty(t, g.Rules())
}

// =============================================================================
// Value
// =============================================================================

func TestField_ParseAndListeners(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{
		Name:  "n",
		Value: 1,
		Parse: func(v any) any {
			if s, ok := v.(string); ok {
				return len(s)
			}
			return v
		},
	})

	type change struct{ v, old any }
	var got []change
	unsubscribe := fd.OnValueChange(func(v, old any) { got = append(got, change{v, old}) })

	require.NoError(t, fd.SetValue("abc"))
	assert.Equal(t, 3, fd.Value())

	unsubscribe()
	require.NoError(t, fd.SetValue(7))
	assert.Equal(t, []change{{3, 1}}, got)
}

func TestField_SetValueEvents(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "a"})
	rec := &recorder{}
	rec.attach(f.Events())

	require.NoError(t, fd.SetValue("x"))
	assert.Equal(t, []EventType{EventFieldValueChange, EventFormValuesChange}, rec.types)
}

func TestField_SetInitialValue(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "a"})

	require.NoError(t, fd.SetInitialValue("init"))
	assert.Equal(t, "init", fd.Value())
	assert.Equal(t, "init", fd.InitialValue())

	require.NoError(t, fd.SetValue("typed"))
	require.NoError(t, fd.SetInitialValue("again"))
	assert.Equal(t, "typed", fd.Value(), "set values are not overwritten")
}

func TestField_ValueIsCopied(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "m", Value: map[string]any{"k": "v"}})

	got := fd.Value().(map[string]any)
	got["k"] = "changed"
	assert.Equal(t, map[string]any{"k": "v"}, fd.Value())
}

// =============================================================================
// Validate
// =============================================================================

func TestField_ValidateCancelsInFlight(t *testing.T) {
	v := &slowValidator{delay: 100 * time.Millisecond}
	f := newTestForm(t, WithValidator(v))
	fd := mustField(t, f, Props{Name: "a", Value: "bad"})

	var wg sync.WaitGroup
	var first error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = fd.Validate(context.Background(), "")
	}()

	require.Eventually(t, func() bool { return v.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, fd.SetValue("good"))
	require.NoError(t, fd.Validate(context.Background(), ""))
	wg.Wait()

	assert.NoError(t, first, "cancelled validation is discarded silently")
	assert.Empty(t, fd.Errors(), "feedback comes from the last call")
}

func TestField_ValidateStoresFeedback(t *testing.T) {
	v := &slowValidator{delay: time.Millisecond}
	f := newTestForm(t, WithValidator(v))
	fd := mustField(t, f, Props{Name: "a", Value: "bad"})

	require.NoError(t, fd.Validate(context.Background(), TriggerOnBlur))
	assert.Equal(t, []string{"bad value"}, fd.Errors())
	assert.False(t, fd.Valid())
}

func TestField_ValidateUsesLookup(t *testing.T) {
	f := newTestForm(t, WithValues(map[string]any{"password": "secret"}))
	confirm := mustField(t, f, Props{
		Name:  "confirm",
		Value: "other",
		Rules: []Rule{{Custom: func(value any, vctx ValidateContext) string {
			pw, _ := vctx.Lookup("password")
			if pw != value {
				return vctx.Label + " must match"
			}
			return ""
		}}},
	})

	require.NoError(t, confirm.Validate(context.Background(), ""))
	assert.Equal(t, []string{"Confirm must match"}, confirm.Errors())
}

func TestField_TriggerFiltersRules(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{
		Name:  "a",
		Rules: []Rule{{Required: true, Triggers: []Trigger{TriggerOnBlur}}},
	})

	require.NoError(t, fd.Validate(context.Background(), TriggerOnInput))
	assert.Empty(t, fd.Errors())
	require.NoError(t, fd.Validate(context.Background(), TriggerOnBlur))
	assert.NotEmpty(t, fd.Errors())
}

// =============================================================================
// Interaction / reset
// =============================================================================

func TestField_FocusBlur(t *testing.T) {
	f := newTestForm(t, WithValidateTrigger(TriggerOnBlur))
	fd := mustField(t, f, Props{Name: "a", Required: true})

	fd.Focus()
	assert.True(t, fd.State().Active)

	require.NoError(t, fd.Blur(context.Background()))
	s := fd.State()
	assert.False(t, s.Active)
	assert.True(t, s.Visited)
	assert.NotEmpty(t, fd.Errors(), "blur validates on blur trigger")
}

func TestField_Reset(t *testing.T) {
	f := newTestForm(t, WithInitialValues(map[string]any{"a": []any{"x"}}))
	fd := mustField(t, f, Props{Name: "a"})
	fd.SetFeedback([]string{"e"}, []string{"w"})
	fd.Focus()
	require.NoError(t, fd.SetValue([]any{"y", "z"}))

	rec := &recorder{}
	rec.attach(f.Events())
	require.NoError(t, fd.Reset())

	assert.Equal(t, []any{"x"}, fd.Value())
	assert.Empty(t, fd.Errors())
	assert.Empty(t, fd.Warnings())
	assert.False(t, fd.State().Active)
	assert.True(t, rec.has(EventFieldReset))
}

func TestField_ResetWithoutInitial(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "a", Value: "v"})
	require.NoError(t, fd.Reset())
	assert.Nil(t, fd.Value())
}

func TestField_Snapshot(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "email", Value: "a@b", Component: "Input"})

	s := fd.Snapshot()
	assert.Equal(t, "email", s["path"])
	assert.Equal(t, "a@b", s["value"])
	assert.Equal(t, true, s["visible"])
	assert.Equal(t, "Input", s["component"])
	assert.Equal(t, "editable", s["mode"])
}

func TestField_ComponentAndDataSource(t *testing.T) {
	f := newTestForm(t)
	fd := mustField(t, f, Props{Name: "city", ComponentProps: map[string]any{"size": "s"}})

	fd.MergeComponentProps(map[string]any{"placeholder": "pick"})
	assert.Equal(t, map[string]any{"size": "s", "placeholder": "pick"}, fd.ComponentProps())

	fd.SetComponent("Select")
	assert.Equal(t, "Select", fd.Component())

	fd.SetDataSource([]any{"a", "b"})
	assert.Equal(t, []any{"a", "b"}, fd.DataSource())

	g1 := fd.NextLoad()
	g2 := fd.NextLoad()
	assert.Greater(t, g2, g1)
	assert.Equal(t, g2, fd.CurrentLoad())
}
