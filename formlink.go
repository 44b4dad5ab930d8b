// Package formlink is a UI-agnostic form state and linkage engine.
//
// A form is a tree of fields over one value tree. Fields declare reactions
// that watch other paths and rewrite state, values, component props or data
// sources when those paths change. New wires the default collaborators:
//
//	backend    reactive.Runtime (synchronous, batched)
//	validator  rule-based validator
//	evaluator  CUE expressions over $self, $deps, $values, $record, $index
//	linker     dependency graph with cycle rejection
//
// Definitions written in CUE or YAML are loaded with Load.
package formlink

import (
	"fmt"

	"github.com/roach88/formlink/internal/expr"
	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/formdef"
	"github.com/roach88/formlink/internal/linkage"
	"github.com/roach88/formlink/internal/reactive"
	"github.com/roach88/formlink/internal/validator"
)

type (
	Form       = form.Form
	Field      = form.Field
	ArrayField = form.ArrayField
	VoidField  = form.VoidField
	Node       = form.Node
	Props      = form.Props
	Rule       = form.Rule
	Reaction   = form.Reaction
	Condition  = form.Condition
	Effect     = form.Effect
	Scope      = form.Scope
	Event      = form.Event
	EventType  = form.EventType
	Option     = form.Option

	Definition = formdef.Definition
	Diagnostic = linkage.Diagnostic
)

var (
	WithID              = form.WithID
	WithValues          = form.WithValues
	WithInitialValues   = form.WithInitialValues
	WithLogger          = form.WithLogger
	WithMode            = form.WithMode
	WithValidateTrigger = form.WithValidateTrigger
	WithValidator       = form.WithValidator
	WithEvaluator       = form.WithEvaluator
	WithBackend         = form.WithBackend
	WithIDGenerator     = form.WithIDGenerator
)

// New creates a form with the default collaborators. Options given here
// override the defaults.
func New(opts ...Option) (*Form, error) {
	base := []Option{
		form.WithBackend(reactive.NewRuntime()),
		form.WithValidator(validator.New()),
		form.WithEvaluator(expr.New()),
		form.WithLinker(linkage.Factory()),
	}
	return form.New(append(base, opts...)...)
}

// FromDefinition creates a form from def and declares its fields. The
// definition's values and identity come before opts.
func FromDefinition(def *Definition, opts ...Option) (*Form, error) {
	f, err := New(append(def.Options(), opts...)...)
	if err != nil {
		return nil, err
	}
	if err := def.Apply(f); err != nil {
		f.Dispose()
		return nil, fmt.Errorf("apply definition: %w", err)
	}
	return f, nil
}

// Load reads a CUE or YAML definition and builds its form.
func Load(path string, opts ...Option) (*Form, error) {
	def, err := formdef.Load(path)
	if err != nil {
		return nil, err
	}
	return FromDefinition(def, opts...)
}

// Diagnostics returns the reaction diagnostics of f, or nil when f was not
// built with the default linker.
func Diagnostics(f *Form) []Diagnostic {
	if e, ok := f.Linker().(*linkage.Engine); ok {
		return e.Diagnostics()
	}
	return nil
}

// Wait blocks until the data-source loads started on f have finished.
func Wait(f *Form) {
	if e, ok := f.Linker().(*linkage.Engine); ok {
		e.Wait()
	}
}
