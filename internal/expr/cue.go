// Package expr evaluates reaction expressions written in CUE.
//
// An expression sees the reaction scope as top-level identifiers:
//
//	$deps[0] + $deps[1] > 10
//	$values.country == "NO"
//	$record.qty * $record.price
//	$self.visible && $index > 0
//
// Builtin packages such as strings or math resolve without imports.
package expr

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Evaluator implements form.Evaluator on top of the CUE runtime.
//
// Thread-safety: Evaluator is safe for concurrent use; evaluations are
// serialized because a cue.Context is not.
type Evaluator struct {
	mu  sync.Mutex
	ctx *cue.Context
}

// New creates an evaluator.
func New() *Evaluator {
	return &Evaluator{ctx: cuecontext.New()}
}

// EvalError reports an expression that failed to compile or evaluate.
type EvalError struct {
	Expr    string
	Message string
	Pos     token.Pos
}

func (e *EvalError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%q:%d: %s", e.Expr, e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%q: %s", e.Expr, e.Message)
}

// Evaluate compiles src with scope bound as identifiers and returns the
// result as plain Go data: nil, bool, int, float64, string, []any or
// map[string]any.
func (e *Evaluator) Evaluate(src string, scope map[string]any) (any, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &EvalError{Expr: src, Message: "empty expression"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sv := e.ctx.Encode(scope)
	if err := sv.Err(); err != nil {
		return nil, evalError(src, err)
	}

	v := e.ctx.CompileString(src, cue.Scope(sv), cue.InferBuiltins(true), cue.Filename("expr"))
	if err := v.Err(); err != nil {
		return nil, evalError(src, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, evalError(src, err)
	}

	var out any
	if err := v.Decode(&out); err != nil {
		return nil, evalError(src, err)
	}
	return out, nil
}

// evalError keeps the first CUE error with its position.
func evalError(src string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &EvalError{Expr: src, Message: err.Error()}
	}
	first := errs[0]
	ee := &EvalError{Expr: src, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ee.Pos = positions[0]
	}
	return ee
}
