package harness

import (
	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/linkage"
)

// TraceEvent is one lifecycle event recorded during a run.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Type    form.EventType `json:"type"`
	Path    string         `json:"path,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NodeState is the observable state of one node at the end of a run.
type NodeState struct {
	Kind       form.Kind `json:"kind"`
	Value      any       `json:"value,omitempty"`
	Visible    bool      `json:"visible"`
	Disabled   bool      `json:"disabled"`
	ReadOnly   bool      `json:"readOnly"`
	Required   bool      `json:"required"`
	Loading    bool      `json:"loading"`
	Component  string    `json:"component,omitempty"`
	DataSource []any     `json:"dataSource,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	FormID      string               `json:"formId"`
	Values      map[string]any       `json:"values"`
	Nodes       map[string]NodeState `json:"nodes"`
	Diagnostics []linkage.Diagnostic `json:"diagnostics,omitempty"`
	Payload     map[string]any       `json:"payload,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Nodes:  make(map[string]NodeState),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
