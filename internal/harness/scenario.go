package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formlink/internal/formdef"
)

// Scenario defines one form scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Definition is the path of a CUE or YAML form definition, relative to
	// the scenario file. Form declares the form inline instead.
	Definition string              `yaml:"definition,omitempty"`
	Form       *formdef.Definition `yaml:"form,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one interaction with the form.
type Step struct {
	Action string `yaml:"action"`

	Path     string         `yaml:"path,omitempty"`
	Value    any            `yaml:"value,omitempty"`
	Values   map[string]any `yaml:"values,omitempty"`
	Strategy string         `yaml:"strategy,omitempty"`

	// Index, From and To address array items.
	Index int `yaml:"index,omitempty"`
	From  int `yaml:"from,omitempty"`
	To    int `yaml:"to,omitempty"`

	ForceClear bool   `yaml:"forceClear,omitempty"`
	Duration   string `yaml:"duration,omitempty"`

	// ExpectError makes a failing step count as expected. Validate and
	// submit fail on invalid forms.
	ExpectError bool `yaml:"expectError,omitempty"`
}

// Step actions.
const (
	StepSet         = "set"
	StepInput       = "input"
	StepSetValues   = "set_values"
	StepPush        = "push"
	StepPop         = "pop"
	StepInsert      = "insert"
	StepRemove      = "remove"
	StepMove        = "move"
	StepFocus       = "focus"
	StepBlur        = "blur"
	StepValidate    = "validate"
	StepSubmit      = "submit"
	StepReset       = "reset"
	StepRemoveField = "remove_field"
	StepWait        = "wait"
)

// Assertion checks the outcome of a run.
type Assertion struct {
	Type string `yaml:"type"`

	Path   string `yaml:"path,omitempty"`
	Expect any    `yaml:"expect,omitempty"`

	// Event and Events name lifecycle event types.
	Event  string   `yaml:"event,omitempty"`
	Events []string `yaml:"events,omitempty"`
	Count  int      `yaml:"count,omitempty"`

	// Code filters diagnostics.
	Code string `yaml:"code,omitempty"`
}

// Assertion types.
const (
	AssertValue       = "value"
	AssertState       = "state"
	AssertErrors      = "errors"
	AssertEventCount  = "event_count"
	AssertEventOrder  = "event_order"
	AssertDiagnostics = "diagnostics"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// surface as errors. The definition path is resolved against the
// scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if s.Definition != "" && !filepath.IsAbs(s.Definition) {
		s.Definition = filepath.Join(filepath.Dir(path), s.Definition)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDefinition returns the inline form or loads the referenced file.
func (s *Scenario) LoadDefinition() (*formdef.Definition, error) {
	if s.Form != nil {
		return s.Form, nil
	}
	return formdef.Load(s.Definition)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch {
	case s.Definition == "" && s.Form == nil:
		return fmt.Errorf("definition or form is required")
	case s.Definition != "" && s.Form != nil:
		return fmt.Errorf("definition and form are mutually exclusive")
	}
	if s.Definition != "" {
		if _, err := os.Stat(s.Definition); os.IsNotExist(err) {
			return fmt.Errorf("definition not found: %s", s.Definition)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st Step) error {
	switch st.Action {
	case StepSet, StepInput, StepPush, StepPop, StepInsert, StepRemove, StepMove,
		StepFocus, StepBlur, StepRemoveField:
		if st.Path == "" {
			return fmt.Errorf("steps[%d]: path is required for %s", i, st.Action)
		}
	case StepSetValues:
		if st.Values == nil {
			return fmt.Errorf("steps[%d]: values is required for set_values", i)
		}
	case StepWait:
		if _, err := time.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("steps[%d]: duration: %w", i, err)
		}
	case StepValidate, StepSubmit, StepReset:
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, st.Action)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertValue, AssertErrors:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", i, a.Type)
		}
	case AssertState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for state", i)
		}
		if _, ok := a.Expect.(map[string]any); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a map of state flags", i)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", i)
		}
	case AssertDiagnostics:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
