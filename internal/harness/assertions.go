package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/formlink/internal/canonical"
	"github.com/roach88/formlink/internal/path"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // assertion type
	Expected string       // human-readable expected outcome
	Actual   string       // human-readable actual outcome
	Trace    []TraceEvent // full trace for context, event assertions only
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, eventRef(ev))
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates every assertion against result and returns
// the messages of the failing ones.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertValue:
			err = assertValue(result, a)
		case AssertState:
			err = assertState(result, a)
		case AssertErrors:
			err = assertErrors(result, a)
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertDiagnostics:
			err = assertDiagnostics(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertValue(r *Result, a Assertion) error {
	actual, _ := path.Get(r.Values, a.Path)
	if !valuesEqual(actual, a.Expect) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %s", a.Path, render(a.Expect)),
			Actual:   render(actual),
		}
	}
	return nil
}

// assertState checks a subset of the node's flags.
func assertState(r *Result, a Assertion) error {
	ns, ok := r.Nodes[a.Path]
	if !ok {
		return &AssertionError{Type: AssertState, Expected: "node " + a.Path, Actual: "not found"}
	}
	flags := map[string]any{
		"visible":  ns.Visible,
		"disabled": ns.Disabled,
		"readOnly": ns.ReadOnly,
		"required": ns.Required,
		"loading":  ns.Loading,
	}
	if ns.Component != "" {
		flags["component"] = ns.Component
	}
	if ns.DataSource != nil {
		flags["dataSource"] = ns.DataSource
	}

	expect, _ := a.Expect.(map[string]any)
	for _, k := range canonical.SortedKeys(expect) {
		got, known := flags[k]
		if !known && k != "component" && k != "dataSource" {
			return fmt.Errorf("state assertion on %s: unknown flag %q", a.Path, k)
		}
		if !valuesEqual(got, expect[k]) {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s.%s = %s", a.Path, k, render(expect[k])),
				Actual:   render(got),
			}
		}
	}
	return nil
}

func assertErrors(r *Result, a Assertion) error {
	ns, ok := r.Nodes[a.Path]
	if !ok {
		return &AssertionError{Type: AssertErrors, Expected: "node " + a.Path, Actual: "not found"}
	}
	var actual any
	if len(ns.Errors) > 0 {
		list := make([]any, len(ns.Errors))
		for i, e := range ns.Errors {
			list[i] = e
		}
		actual = list
	}
	expect := a.Expect
	if l, ok := expect.([]any); ok && len(l) == 0 {
		expect = nil
	}
	if !valuesEqual(actual, expect) {
		return &AssertionError{
			Type:     AssertErrors,
			Expected: fmt.Sprintf("%s errors %s", a.Path, render(expect)),
			Actual:   render(actual),
		}
	}
	return nil
}

// assertEventCount counts events of the given type, optionally on a path.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if string(ev.Type) == a.Event && (a.Path == "" || ev.Path == a.Path) {
			count++
		}
	}
	if count != a.Count {
		what := a.Event
		if a.Path != "" {
			what += ":" + a.Path
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventOrder checks that the events appear in order, each entry
// matching the first occurrence after the previous match. An entry written
// "type:path" also matches the path. Intervening events are allowed.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Events {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if matchEvent(ev, want) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%s not found after the previous match", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

func matchEvent(ev TraceEvent, want string) bool {
	typ, p, hasPath := strings.Cut(want, ":")
	if string(ev.Type) != typ {
		return false
	}
	return !hasPath || ev.Path == p
}

func eventRef(ev TraceEvent) string {
	if ev.Path == "" {
		return string(ev.Type)
	}
	return string(ev.Type) + ":" + ev.Path
}

func assertDiagnostics(r *Result, a Assertion) error {
	count := 0
	var seen []string
	for _, d := range r.Diagnostics {
		seen = append(seen, fmt.Sprintf("%s@%s", d.Code, d.Path))
		if (a.Code == "" || string(d.Code) == a.Code) && (a.Path == "" || d.Path == a.Path) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertDiagnostics,
			Expected: fmt.Sprintf("%d diagnostics (code %q, path %q)", a.Count, a.Code, a.Path),
			Actual:   fmt.Sprintf("%d matching of %v", count, seen),
		}
	}
	return nil
}

// valuesEqual compares through canonical JSON so that numbers decoded as
// int and float64 compare by value.
func valuesEqual(actual, expected any) bool {
	a, errA := canonical.Marshal(actual)
	e, errE := canonical.Marshal(expected)
	if errA != nil || errE != nil {
		return false
	}
	return bytes.Equal(a, e)
}

func render(v any) string {
	b, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
