package form

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Mode is the interaction mode of a form or field.
type Mode string

const (
	ModeEditable Mode = "editable"
	ModeReadOnly Mode = "readOnly"
	ModeDisabled Mode = "disabled"
)

// Trigger names the interaction that asked for validation.
type Trigger string

const (
	TriggerOnInput  Trigger = "onInput"
	TriggerOnBlur   Trigger = "onBlur"
	TriggerOnSubmit Trigger = "onSubmit"
)

// Kind distinguishes node types in the registry.
type Kind string

const (
	KindField Kind = "field"
	KindArray Kind = "array"
	KindVoid  Kind = "void"
)

// Rule is one declarative validation rule. A rule with Triggers set only
// runs for those triggers; an empty trigger runs every rule.
type Rule struct {
	Required  bool      `json:"required,omitempty" yaml:"required,omitempty"`
	MinLength *int      `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int      `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Min       *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern   string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Enum      []any     `json:"enum,omitempty" yaml:"enum,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Warning   bool      `json:"warning,omitempty" yaml:"warning,omitempty"`
	Triggers  []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// Custom returns a non-empty message when value is invalid.
	Custom func(value any, vctx ValidateContext) string `json:"-" yaml:"-"`
}

// AppliesTo reports whether the rule runs for trigger.
func (r Rule) AppliesTo(trigger Trigger) bool {
	if trigger == "" || len(r.Triggers) == 0 {
		return true
	}
	for _, t := range r.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// ValidateContext is what a validator sees besides the value.
type ValidateContext struct {
	Path  string
	Label string

	// Lookup reads another value from the form by path.
	Lookup func(path string) (any, bool)
}

// ValidateResult carries validator feedback for one field.
type ValidateResult struct {
	Errors   []string
	Warnings []string
}

// Validator evaluates rules against a value.
type Validator interface {
	Validate(ctx context.Context, value any, rules []Rule, vctx ValidateContext, trigger Trigger) (ValidateResult, error)
}

// Evaluator evaluates expression strings against a flat scope whose keys
// are $self, $values, $form, $record, $index and $deps.
type Evaluator interface {
	Evaluate(expr string, scope map[string]any) (any, error)
}

// Linker activates the reactions declared on nodes.
type Linker interface {
	// Activate compiles and subscribes the reactions declared on n.
	Activate(n Node) error

	// Release disposes everything registered for path. Calling it for an
	// unknown or already released path is a no-op.
	Release(path string)

	// Dispose tears down every subscription.
	Dispose()
}

// LinkerFactory builds the linker of a form once the form exists.
type LinkerFactory func(f *Form) Linker

// IDGenerator produces node and form identities.
type IDGenerator interface {
	Generate() string
}

// Reaction is a declarative watch, condition and effect binding.
type Reaction struct {
	ID string

	// Watch lists the watched paths. A "*" segment matches one segment; a
	// leading "." resolves against the owning field's parent.
	Watch []string

	// Target is the path the effects apply to. Empty means the owner.
	Target string

	When      *Condition
	Fulfill   *Effect
	Otherwise *Effect

	Debounce time.Duration
}

// Condition selects between the fulfill and otherwise effects. Func wins
// over Expr when both are set.
type Condition struct {
	Func func(s Scope) bool
	Expr string
}

// Effect is the set of changes a reaction applies. Present parts are applied
// in field order: State, Value, Props, Component, DataSource, Run.
type Effect struct {
	State      *StatePatch
	Value      *ValueEffect
	Props      map[string]any
	Component  string
	DataSource *DataSource
	Run        *RunEffect
}

// StatePatch changes UI-state flags. Exprs maps a flag name (visible,
// disabled, readOnly, loading, required) to an expression yielding a bool.
type StatePatch struct {
	Visible  *bool
	Disabled *bool
	ReadOnly *bool
	Loading  *bool
	Required *bool
	Exprs    map[string]string
}

// ValueEffect produces the new value. Func wins over Expr, Expr over Literal.
type ValueEffect struct {
	Func    func(s Scope) any
	Expr    string
	Literal any
}

// DataLoader fetches data-source items.
type DataLoader func(ctx context.Context, s Scope) ([]any, error)

// DataSource sets the items of a choice field. Items are applied directly;
// Load runs asynchronously and its failures are dropped.
type DataSource struct {
	Items []any
	Load  DataLoader
}

// RunEffect is a custom side effect.
type RunEffect struct {
	Func func(s Scope)
	Expr string
}

// Scope is the context conditions and effects run in.
type Scope struct {
	Self Node
	Form *Form

	// Record is the nearest enclosing array row of Self, Index its index.
	// Index is -1 when Self is not inside an array.
	Record any
	Index  int

	Deps []any

	values *lazyValues
}

type lazyValues struct {
	once sync.Once
	m    map[string]any
}

// NewScope creates a scope for self on f. The copy of the form values is
// taken on first use and shared by every copy of the scope.
func NewScope(self Node, f *Form) Scope {
	return Scope{Self: self, Form: f, Index: -1, values: &lazyValues{}}
}

// Values returns a copy of the form values.
func (s Scope) Values() map[string]any {
	if s.Form == nil {
		return map[string]any{}
	}
	if s.values == nil {
		return s.Form.Values()
	}
	s.values.once.Do(func() { s.values.m = s.Form.Values() })
	return s.values.m
}

// Vars flattens s for evaluating src. $values is only bound when src
// mentions it.
func (s Scope) Vars(src string) map[string]any {
	vars := map[string]any{
		"$record": s.Record,
		"$index":  s.Index,
		"$deps":   s.Deps,
	}
	if strings.Contains(src, "$values") {
		vars["$values"] = s.Values()
	}
	if s.Self != nil {
		vars["$self"] = s.Self.Snapshot()
	} else {
		vars["$self"] = map[string]any{}
	}
	if s.Form != nil {
		vars["$form"] = s.Form.Snapshot()
	} else {
		vars["$form"] = map[string]any{}
	}
	return vars
}

// Props describes a node to create. Value-related props are ignored for
// void fields.
type Props struct {
	Name     string
	BasePath string
	Label    string

	Value        any
	InitialValue any

	Visible  *bool
	Disabled bool
	ReadOnly bool
	Required bool
	Mode     Mode

	Rules     []Rule
	Reactions []Reaction

	Component      string
	ComponentProps map[string]any
	DataSource     []any

	// Parse is applied to values passed to SetValue.
	Parse func(any) any

	// Transform is applied to the value when building a submit payload.
	Transform func(any) any

	// SubmitPath moves the value to another path in the submit payload.
	SubmitPath string

	// ExcludeWhenHidden drops the value from the submit payload while the
	// field is hidden.
	ExcludeWhenHidden bool

	MinItems     int
	MaxItems     int
	ItemTemplate any
	ItemFactory  func() any
}

// Path returns the full path the props address.
func (p Props) Path() string {
	if p.BasePath == "" {
		return p.Name
	}
	if p.Name == "" {
		return p.BasePath
	}
	return p.BasePath + "." + p.Name
}

// State is a snapshot of a node's UI-state flags.
type State struct {
	Visible  bool `json:"visible"`
	Disabled bool `json:"disabled"`
	ReadOnly bool `json:"readOnly"`
	Loading  bool `json:"loading"`
	Active   bool `json:"active"`
	Visited  bool `json:"visited"`
	Required bool `json:"required"`
	Modified bool `json:"modified"`
	Mode     Mode `json:"mode,omitempty"`
}

// SetValuesStrategy selects how SetValues combines values.
type SetValuesStrategy string

const (
	StrategyMerge   SetValuesStrategy = "merge"
	StrategyShallow SetValuesStrategy = "shallow"
	StrategyReplace SetValuesStrategy = "replace"
)

// ResetOptions tunes Form.Reset.
type ResetOptions struct {
	// Paths limits the reset to fields matching these paths or patterns.
	Paths []string

	// ForceClear empties every top-level value instead of restoring
	// initial values.
	ForceClear bool

	// Validate runs validation after the reset.
	Validate bool
}

// SubmitFunc receives the submit payload.
type SubmitFunc func(ctx context.Context, payload map[string]any) error
