package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/formdef"
	"github.com/roach88/formlink/internal/journal"
	"github.com/roach88/formlink/internal/testutil"
)

func inline(fields ...formdef.FieldDef) *formdef.Definition {
	return &formdef.Definition{Fields: fields}
}

func TestRun_TestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			s, err := LoadScenario(p)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_AddressDefinition(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/address_linkage.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "address", result.FormID)
	assert.False(t, result.Nodes["state"].Visible)
	assert.Equal(t, []any{"us", "de"}, result.Nodes["country"].DataSource)
	assert.False(t, result.Nodes["zip"].Required)
	assert.Equal(t, []string{"country", "state", "zip"}, result.Paths())
}

func TestRun_FailingAssertion(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "Asserts a value the steps never write",
		Form:        inline(formdef.FieldDef{Name: "a"}),
		Steps:       []Step{{Action: StepSet, Path: "a", Value: 1}},
		Assertions:  []Assertion{{Type: AssertValue, Path: "a", Expect: 2}},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: value")
	assert.Contains(t, result.Errors[0], "a = 2")
}

func TestRun_StepErrors(t *testing.T) {
	s := &Scenario{
		Name:        "step_errors",
		Description: "An unknown field and an unexpected success both fail the run",
		Form:        inline(formdef.FieldDef{Name: "a"}),
		Steps: []Step{
			{Action: StepSet, Path: "missing", Value: 1},
			{Action: StepValidate, ExpectError: true},
		},
		Assertions: []Assertion{{Type: AssertValue, Path: "a", Expect: nil}},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "field missing not found")
	assert.Contains(t, result.Errors[1], "expected an error")
}

func TestRun_ExpectedValidationFailure(t *testing.T) {
	s := &Scenario{
		Name:        "validate",
		Description: "Validation fails on a required field",
		Form:        inline(formdef.FieldDef{Name: "email", Label: "Email", Required: true}),
		Steps:       []Step{{Action: StepValidate, ExpectError: true}},
		Assertions: []Assertion{
			{Type: AssertErrors, Path: "email", Expect: []any{"Email is required"}},
			{Type: AssertEventCount, Event: string(form.EventFormValidateFailed), Count: 1},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"Email is required"}, result.Nodes["email"].Errors)
}

func TestRun_ResetAndSetValues(t *testing.T) {
	s := &Scenario{
		Name:        "reset",
		Description: "Reset restores initial values after a merge",
		Form: &formdef.Definition{
			InitialValues: map[string]any{"a": "one"},
			Fields:        []formdef.FieldDef{{Name: "a"}, {Name: "b"}},
		},
		Steps: []Step{
			{Action: StepSetValues, Values: map[string]any{"a": "two", "b": "x"}},
			{Action: StepReset, Path: "a"},
		},
		Assertions: []Assertion{
			{Type: AssertValue, Path: "a", Expect: "one"},
			{Type: AssertValue, Path: "b", Expect: "x"},
			{Type: AssertEventCount, Event: string(form.EventFormReset), Count: 1},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DefinitionError(t *testing.T) {
	s := &Scenario{
		Name:        "bad",
		Description: "The definition cannot be read",
		Definition:  filepath.Join(t.TempDir(), "missing.cue"),
		Assertions:  []Assertion{{Type: AssertValue, Path: "a"}},
	}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load definition")
}

func TestRun_CancelledWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scenario{
		Name:        "cancelled",
		Description: "A wait step stops when the context ends",
		Form:        inline(formdef.FieldDef{Name: "a"}),
		Steps:       []Step{{Action: StepWait, Duration: time.Hour.String()}},
		Assertions:  []Assertion{{Type: AssertValue, Path: "a"}},
	}

	result, err := Run(ctx, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "context canceled")
}

func TestRun_TraceIsSequenced(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/visibility_linkage.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)

	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, form.EventFieldInit, result.Trace[0].Type)
	assert.Equal(t, "a", result.Trace[0].Path)
}

func TestRun_WithJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "events.db"),
		journal.WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	s, err := LoadScenario("testdata/scenarios/submit_required.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s, WithJournal(j))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	entries, err := j.Events(context.Background(), "form")
	require.NoError(t, err)
	require.Len(t, entries, len(result.Trace))
	for i, e := range entries {
		assert.Equal(t, result.Trace[i].Type, e.Type)
		assert.Equal(t, result.Trace[i].Path, e.Path)
	}
}

func TestResult_Paths(t *testing.T) {
	r := NewResult()
	for _, p := range []string{"items.10.name", "items", "items.2.name", "b", "items.2.age"} {
		r.Nodes[p] = NodeState{}
	}
	assert.Equal(t, []string{"b", "items", "items.2.age", "items.2.name", "items.10.name"}, r.Paths())
}
