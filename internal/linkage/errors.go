package linkage

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes diagnostics.
type Code string

const (
	// CodeCycleDetected marks a rule rejected because its edges would close
	// a dependency cycle.
	CodeCycleDetected Code = "CYCLE_DETECTED"

	// CodeTargetNotFound marks an execution aborted because the explicit
	// target path is not registered.
	CodeTargetNotFound Code = "TARGET_NOT_FOUND"

	// CodeEvalFailed marks a condition or effect expression that could not
	// be evaluated.
	CodeEvalFailed Code = "EVAL_FAILED"

	// CodeEffectPanicked marks a user condition or effect that panicked.
	CodeEffectPanicked Code = "EFFECT_PANICKED"
)

// Diagnostic reports a reaction the engine disabled or skipped. Diagnostics
// are never returned from form operations; they are logged and collected
// on the engine.
type Diagnostic struct {
	Code Code `json:"code"`

	// Path is the path of the node declaring the rule.
	Path string `json:"path"`

	// Rule identifies the rule on its node.
	Rule string `json:"rule"`

	Message string `json:"message"`

	// Cycle lists the closed path for cycle diagnostics, first node repeated
	// at the end.
	Cycle []string `json:"cycle,omitempty"`
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	if d.Rule != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", d.Code, d.Message, d.Rule)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// IsCycleError reports whether err is a cycle diagnostic.
func IsCycleError(err error) bool {
	return hasCode(err, CodeCycleDetected)
}

// IsTargetNotFound reports whether err is a missing-target diagnostic.
func IsTargetNotFound(err error) bool {
	return hasCode(err, CodeTargetNotFound)
}

func hasCode(err error, code Code) bool {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Code == code
	}
	return false
}

func newCycleDiagnostic(owner, rule string, cycle []string) *Diagnostic {
	return &Diagnostic{
		Code:    CodeCycleDetected,
		Path:    owner,
		Rule:    rule,
		Message: "reaction would close a dependency cycle: " + strings.Join(cycle, " → "),
		Cycle:   cycle,
	}
}

func newTargetDiagnostic(owner, rule, target string) *Diagnostic {
	return &Diagnostic{
		Code:    CodeTargetNotFound,
		Path:    owner,
		Rule:    rule,
		Message: fmt.Sprintf("target %q is not registered", target),
	}
}

func newEvalDiagnostic(owner, rule string, err error) *Diagnostic {
	return &Diagnostic{
		Code:    CodeEvalFailed,
		Path:    owner,
		Rule:    rule,
		Message: err.Error(),
	}
}

func newPanicDiagnostic(owner, rule string, p any) *Diagnostic {
	return &Diagnostic{
		Code:    CodeEffectPanicked,
		Path:    owner,
		Rule:    rule,
		Message: fmt.Sprint(p),
	}
}
