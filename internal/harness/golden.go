package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/formlink/internal/canonical"
	"github.com/roach88/formlink/internal/linkage"
)

// Snapshot is the part of a result compared against golden files. The
// trace is left out; event assertions cover it.
type Snapshot struct {
	Scenario    string               `json:"scenario"`
	FormID      string               `json:"formId"`
	Values      map[string]any       `json:"values"`
	Nodes       map[string]NodeState `json:"nodes"`
	Diagnostics []linkage.Diagnostic `json:"diagnostics,omitempty"`
	Payload     map[string]any       `json:"payload,omitempty"`
}

// NewSnapshot captures r under the scenario name.
func NewSnapshot(name string, r *Result) Snapshot {
	return Snapshot{
		Scenario:    name,
		FormID:      r.FormID,
		Values:      r.Values,
		Nodes:       r.Nodes,
		Diagnostics: r.Diagnostics,
		Payload:     r.Payload,
	}
}

// Marshal returns the canonical JSON of s.
func (s Snapshot) Marshal() ([]byte, error) {
	return canonical.Marshal(s)
}

// RunWithGolden runs scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against its
// golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
