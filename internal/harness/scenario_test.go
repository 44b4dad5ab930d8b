package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			s, err := LoadScenario(p)
			require.NoError(t, err)
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Assertions)
		})
	}
}

func TestLoadScenario_ResolvesDefinition(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/address_linkage.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "forms", "address.yaml"), s.Definition)

	def, err := s.LoadDefinition()
	require.NoError(t, err)
	assert.Equal(t, "address", def.ID)
	assert.Len(t, def.Fields, 3)
}

func TestLoadScenario_InlineForm(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/visibility_linkage.yaml")
	require.NoError(t, err)
	require.NotNil(t, s.Form)

	def, err := s.LoadDefinition()
	require.NoError(t, err)
	assert.Same(t, s.Form, def)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, StepSet, s.Steps[0].Action)
	assert.Equal(t, 1, s.Steps[0].Value)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nform: {fields: [{name: a}]}\nassertions: [{type: value, path: a}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nform: {fields: [{name: a}]}\nassertions: [{type: value, path: a}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no form",
			content: "name: n\ndescription: d\nassertions: [{type: value, path: a}]\n",
			wantErr: "definition or form is required",
		},
		{
			name:    "both form and definition",
			content: "name: n\ndescription: d\ndefinition: x.cue\nform: {fields: [{name: a}]}\nassertions: [{type: value, path: a}]\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "definition missing",
			content: "name: n\ndescription: d\ndefinition: nowhere.cue\nassertions: [{type: value, path: a}]\n",
			wantErr: "definition not found",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\nform: {fields: [{name: a}]}\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown action",
			content: "name: n\ndescription: d\nform: {fields: [{name: a}]}\nsteps: [{action: click, path: a}]\nassertions: [{type: value, path: a}]\n",
			wantErr: `unknown action "click"`,
		},
		{
			name:    "set without path",
			content: "name: n\ndescription: d\nform: {fields: [{name: a}]}\nsteps: [{action: set, value: 1}]\nassertions: [{type: value, path: a}]\n",
			wantErr: "path is required for set",
		},
		{
			name:    "bad wait duration",
			content: "name: n\ndescription: d\nform: {fields: [{name: a}]}\nsteps: [{action: wait, duration: soon}]\nassertions: [{type: value, path: a}]\n",
			wantErr: "steps[0]: duration",
		},
		{
			name:    "unknown field",
			content: "name: n\ndescription: d\nflow: []\nform: {fields: [{name: a}]}\nassertions: [{type: value, path: a}]\n",
			wantErr: "field flow not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario")
}
