package formdef

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formlink/internal/expr"
	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/linkage"
	"github.com/roach88/formlink/internal/reactive"
	"github.com/roach88/formlink/internal/testutil"
	"github.com/roach88/formlink/internal/validator"
)

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

// =============================================================================
// Parsing
// =============================================================================

func TestLoad_CUEAndYAMLAgree(t *testing.T) {
	fromCUE, err := Load(filepath.Join("testdata", "signup.cue"))
	require.NoError(t, err)
	fromYAML, err := Load(filepath.Join("testdata", "signup.yaml"))
	require.NoError(t, err)

	if diff := cmp.Diff(fromCUE, fromYAML); diff != "" {
		t.Errorf("CUE and YAML definitions differ (-cue +yaml):\n%s", diff)
	}
	assert.Equal(t, "signup", fromCUE.ID)
	assert.Len(t, fromCUE.Fields, 5)
}

func TestDefinition_Props(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "signup.cue"))
	require.NoError(t, err)

	props, err := def.Props()
	require.NoError(t, err)
	require.Len(t, props, 5)

	country := props[1]
	require.Len(t, country.Reactions, 1)
	r := country.Reactions[0]
	assert.Equal(t, "toggle-state", r.ID)
	assert.Equal(t, []string{"country"}, r.Watch)
	assert.Equal(t, "state", r.Target)
	assert.Equal(t, &form.Condition{Expr: `$deps[0] == "us"`}, r.When)
	assert.Equal(t, &form.StatePatch{Visible: boolPtr(true)}, r.Fulfill.State)
	assert.Equal(t, &form.StatePatch{Visible: boolPtr(false)}, r.Otherwise.State)
	assert.Nil(t, r.Otherwise.Value, "a null value leaves the target alone")

	age := props[2]
	want := []form.Rule{{Min: floatPtr(18), Message: "adults only", Triggers: []form.Trigger{form.TriggerOnSubmit}}}
	if diff := cmp.Diff(want, age.Rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}

	email := props[4]
	assert.Equal(t, "contacts.*.email", email.Path())
	er := email.Reactions[0]
	assert.Equal(t, 200*time.Millisecond, er.Debounce)
	assert.Equal(t, map[string]string{"required": "$index == 0"}, er.Fulfill.State.Exprs)

	assert.Equal(t, form.KindArray, def.Fields[3].NodeKind())
	assert.Equal(t, form.KindField, def.Fields[0].NodeKind())
}

func TestIsExpr(t *testing.T) {
	tests := []struct {
		in   string
		src  string
		expr bool
	}{
		{"{{ a + 1 }}", "a + 1", true},
		{"  {{x}}  ", "x", true},
		{"{{}}", "", true},
		{"plain", "", false},
		{"{{ open", "", false},
		{"{}", "", false},
	}
	for _, tt := range tests {
		src, ok := IsExpr(tt.in)
		assert.Equal(t, tt.expr, ok, tt.in)
		assert.Equal(t, tt.src, src, tt.in)
	}
}

func TestEffect_Values(t *testing.T) {
	eff, err := (&EffectDef{Value: "{{ $deps[0] * 2 }}"}).effect()
	require.NoError(t, err)
	assert.Equal(t, &form.ValueEffect{Expr: "$deps[0] * 2"}, eff.Value)

	eff, err = (&EffectDef{Value: "plain text"}).effect()
	require.NoError(t, err)
	assert.Equal(t, &form.ValueEffect{Literal: "plain text"}, eff.Value)

	eff, err = (&EffectDef{Run: "noop", DataSource: []any{1}}).effect()
	require.NoError(t, err)
	assert.Equal(t, &form.RunEffect{Expr: "noop"}, eff.Run)
	assert.Equal(t, []any{1}, eff.DataSource.Items)
}

// =============================================================================
// Errors
// =============================================================================

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		src    string
		code   string
	}{
		{"cue syntax", FormatCUE, "fields: [", CodeParseFailed},
		{"cue incomplete", FormatCUE, "id: string", CodeParseFailed},
		{"yaml syntax", FormatYAML, "fields: [", CodeParseFailed},
		{"yaml unknown key", FormatYAML, "fieldz: []", CodeParseFailed},
		{"unknown format", Format("toml"), "", CodeUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), tt.format, "def.cue")
			var de *DefError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestParse_CUEErrorPosition(t *testing.T) {
	_, err := Parse([]byte("id: 1\nid: 2\n"), FormatCUE, "conflict.cue")
	var de *DefError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Pos.IsValid())
	assert.Contains(t, err.Error(), "conflict.cue:")
}

func TestProps_Errors(t *testing.T) {
	tests := []struct {
		name  string
		field FieldDef
		code  string
		msg   string
	}{
		{"missing name", FieldDef{}, CodeInvalidField, "name is required"},
		{"unknown kind", FieldDef{Name: "a", Kind: "table"}, CodeInvalidField, `unknown kind "table"`},
		{"unknown mode", FieldDef{Name: "a", Mode: "hidden"}, CodeInvalidField, `unknown mode "hidden"`},
		{"bad debounce", FieldDef{Name: "a", Reactions: []ReactionDef{{Debounce: "soon"}}}, CodeInvalidReaction, "debounce"},
		{"negative debounce", FieldDef{Name: "a", Reactions: []ReactionDef{{Debounce: "-1s"}}}, CodeInvalidReaction, "negative"},
		{"unknown flag", FieldDef{Name: "a", Reactions: []ReactionDef{{Fulfill: &EffectDef{State: map[string]any{"hidden": true}}}}}, CodeInvalidReaction, `unknown state flag "hidden"`},
		{"flag not expr", FieldDef{Name: "a", Reactions: []ReactionDef{{Otherwise: &EffectDef{State: map[string]any{"visible": "yes"}}}}}, CodeInvalidReaction, "otherwise: state visible"},
		{"flag wrong type", FieldDef{Name: "a", Reactions: []ReactionDef{{Fulfill: &EffectDef{State: map[string]any{"visible": 1}}}}}, CodeInvalidReaction, "got int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &Definition{Fields: []FieldDef{tt.field}}
			_, err := def.Props()
			var de *DefError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tt.code, de.Code)
			assert.Contains(t, de.Message, tt.msg)
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var de *DefError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, CodeNotFound, de.Code)

	p := filepath.Join(t.TempDir(), "form.toml")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	_, err = Load(p)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, CodeUnknownFormat, de.Code)
}

// =============================================================================
// Apply
// =============================================================================

func newDefinedForm(t *testing.T, def *Definition) *form.Form {
	t.Helper()
	opts := append([]form.Option{
		form.WithBackend(reactive.NewRuntime(reactive.WithLogger(testutil.DiscardLogger()))),
		form.WithValidator(validator.New()),
		form.WithEvaluator(expr.New()),
		form.WithLinker(linkage.Factory()),
		form.WithLogger(testutil.DiscardLogger()),
		form.WithIDGenerator(testutil.NewSequenceGenerator("node")),
	}, def.Options()...)
	f, err := form.New(opts...)
	require.NoError(t, err)
	t.Cleanup(f.Dispose)
	require.NoError(t, def.Apply(f))
	return f
}

func TestApply_BuildsLinkedForm(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "signup.cue"))
	require.NoError(t, err)
	f := newDefinedForm(t, def)

	assert.Equal(t, "signup", f.ID())

	state, ok := f.Field("state")
	require.True(t, ok)
	assert.True(t, state.Visible(), "country starts as us")

	country, ok := f.Field("country")
	require.True(t, ok)
	require.NoError(t, country.SetValue("de"))
	assert.False(t, state.Visible())

	contacts, ok := f.ArrayField("contacts")
	require.True(t, ok)
	assert.Equal(t, 2, contacts.Len())

	first, ok := f.Field("contacts.0.email")
	require.True(t, ok, "row template expanded for row 0")
	second, ok := f.Field("contacts.1.email")
	require.True(t, ok, "row template expanded for row 1")

	assert.Eventually(t, func() bool {
		return first.State().Required && !second.State().Required
	}, time.Second, 10*time.Millisecond, "debounced reaction marks only the first row required")
}

func TestExpandRows_CreatesNewRowFields(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "signup.yaml"))
	require.NoError(t, err)
	f := newDefinedForm(t, def)

	contacts, ok := f.ArrayField("contacts")
	require.True(t, ok)
	require.NoError(t, contacts.Push())

	_, ok = f.Field("contacts.2.email")
	assert.False(t, ok, "rows are not created implicitly")

	require.NoError(t, def.ExpandRows(f, "contacts"))
	third, ok := f.Field("contacts.2.email")
	require.True(t, ok)
	assert.Equal(t, "", third.Value())

	require.NoError(t, def.ExpandRows(f, "contacts"), "expanding again is a no-op")
}
