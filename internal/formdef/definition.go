// Package formdef loads declarative form definitions.
//
// A definition is written in CUE or YAML (JSON is read as YAML) and lists
// the form's fields with their rules and reactions. Strings written as
// "{{ expr }}" inside reactions become expressions evaluated at run time;
// the rest are literals.
//
//	fields: [
//		{name: "country", dataSource: ["us", "de"]},
//		{
//			name: "state"
//			reactions: [{
//				watch: ["country"]
//				when: "{{ $deps[0] == \"us\" }}"
//				fulfill: state: visible: true
//				otherwise: state: visible: false
//			}]
//		},
//	]
package formdef

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/formlink/internal/form"
)

// Definition is a complete form declaration.
type Definition struct {
	ID            string         `json:"id,omitempty" yaml:"id,omitempty"`
	Values        map[string]any `json:"values,omitempty" yaml:"values,omitempty"`
	InitialValues map[string]any `json:"initialValues,omitempty" yaml:"initialValues,omitempty"`
	Fields        []FieldDef     `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Node kinds accepted in FieldDef.Kind.
const (
	KindField = "field"
	KindArray = "array"
	KindVoid  = "void"
)

// FieldDef declares one node. Kind defaults to "field".
type FieldDef struct {
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`

	Value        any `json:"value,omitempty" yaml:"value,omitempty"`
	InitialValue any `json:"initialValue,omitempty" yaml:"initialValue,omitempty"`

	Visible  *bool  `json:"visible,omitempty" yaml:"visible,omitempty"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	ReadOnly bool   `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty"`

	Rules     []form.Rule   `json:"rules,omitempty" yaml:"rules,omitempty"`
	Reactions []ReactionDef `json:"reactions,omitempty" yaml:"reactions,omitempty"`

	Component      string         `json:"component,omitempty" yaml:"component,omitempty"`
	ComponentProps map[string]any `json:"componentProps,omitempty" yaml:"componentProps,omitempty"`
	DataSource     []any          `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`

	SubmitPath        string `json:"submitPath,omitempty" yaml:"submitPath,omitempty"`
	ExcludeWhenHidden bool   `json:"excludeWhenHidden,omitempty" yaml:"excludeWhenHidden,omitempty"`

	MinItems     int `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems     int `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`
	ItemTemplate any `json:"itemTemplate,omitempty" yaml:"itemTemplate,omitempty"`
}

// Path returns the full path of the node.
func (d FieldDef) Path() string {
	return d.Props().Path()
}

// ReactionDef declares one reaction. Debounce is a Go duration string.
type ReactionDef struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Watch     []string   `json:"watch,omitempty" yaml:"watch,omitempty"`
	Target    string     `json:"target,omitempty" yaml:"target,omitempty"`
	When      string     `json:"when,omitempty" yaml:"when,omitempty"`
	Fulfill   *EffectDef `json:"fulfill,omitempty" yaml:"fulfill,omitempty"`
	Otherwise *EffectDef `json:"otherwise,omitempty" yaml:"otherwise,omitempty"`
	Debounce  string     `json:"debounce,omitempty" yaml:"debounce,omitempty"`
}

// EffectDef declares an effect. State flags take a bool or an expression.
// A nil Value leaves the target value alone.
type EffectDef struct {
	State      map[string]any `json:"state,omitempty" yaml:"state,omitempty"`
	Value      any            `json:"value,omitempty" yaml:"value,omitempty"`
	Props      map[string]any `json:"props,omitempty" yaml:"props,omitempty"`
	Component  string         `json:"component,omitempty" yaml:"component,omitempty"`
	DataSource []any          `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`
	Run        string         `json:"run,omitempty" yaml:"run,omitempty"`
}

// Props converts d to form props. Reactions are not included; use
// Definition.Props, which reports reaction errors.
func (d FieldDef) Props() form.Props {
	return form.Props{
		Name:              d.Name,
		BasePath:          d.BasePath,
		Label:             d.Label,
		Value:             d.Value,
		InitialValue:      d.InitialValue,
		Visible:           d.Visible,
		Disabled:          d.Disabled,
		ReadOnly:          d.ReadOnly,
		Required:          d.Required,
		Mode:              form.Mode(d.Mode),
		Rules:             d.Rules,
		Component:         d.Component,
		ComponentProps:    d.ComponentProps,
		DataSource:        d.DataSource,
		SubmitPath:        d.SubmitPath,
		ExcludeWhenHidden: d.ExcludeWhenHidden,
		MinItems:          d.MinItems,
		MaxItems:          d.MaxItems,
		ItemTemplate:      d.ItemTemplate,
	}
}

// Props converts every field definition, in declaration order.
func (def *Definition) Props() ([]form.Props, error) {
	out := make([]form.Props, 0, len(def.Fields))
	for i, fd := range def.Fields {
		if err := fd.check(); err != nil {
			return nil, &DefError{Code: CodeInvalidField, Field: fieldRef(i, fd), Message: err.Error()}
		}
		p := fd.Props()
		for j, rd := range fd.Reactions {
			r, err := rd.Reaction()
			if err != nil {
				return nil, &DefError{
					Code:    CodeInvalidReaction,
					Field:   fmt.Sprintf("%s.reactions[%d]", fieldRef(i, fd), j),
					Message: err.Error(),
				}
			}
			p.Reactions = append(p.Reactions, r)
		}
		out = append(out, p)
	}
	return out, nil
}

// NodeKind returns the node kind, defaulting to a plain field.
func (d FieldDef) NodeKind() form.Kind {
	switch d.Kind {
	case KindArray:
		return form.KindArray
	case KindVoid:
		return form.KindVoid
	}
	return form.KindField
}

func (d FieldDef) check() error {
	if d.Name == "" && d.BasePath == "" {
		return fmt.Errorf("name is required")
	}
	switch d.Kind {
	case "", KindField, KindArray, KindVoid:
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	switch form.Mode(d.Mode) {
	case "", form.ModeEditable, form.ModeReadOnly, form.ModeDisabled:
	default:
		return fmt.Errorf("unknown mode %q", d.Mode)
	}
	return nil
}

func fieldRef(i int, d FieldDef) string {
	if p := d.Path(); p != "" {
		return fmt.Sprintf("fields[%d](%s)", i, p)
	}
	return fmt.Sprintf("fields[%d]", i)
}

// Reaction converts rd to a form reaction.
func (rd ReactionDef) Reaction() (form.Reaction, error) {
	r := form.Reaction{
		ID:     rd.ID,
		Watch:  rd.Watch,
		Target: rd.Target,
	}
	if rd.When != "" {
		r.When = &form.Condition{Expr: exprText(rd.When)}
	}
	if rd.Debounce != "" {
		d, err := time.ParseDuration(rd.Debounce)
		if err != nil {
			return form.Reaction{}, fmt.Errorf("debounce: %w", err)
		}
		if d < 0 {
			return form.Reaction{}, fmt.Errorf("debounce: negative duration %s", d)
		}
		r.Debounce = d
	}

	var err error
	if r.Fulfill, err = rd.Fulfill.effect(); err != nil {
		return form.Reaction{}, fmt.Errorf("fulfill: %w", err)
	}
	if r.Otherwise, err = rd.Otherwise.effect(); err != nil {
		return form.Reaction{}, fmt.Errorf("otherwise: %w", err)
	}
	return r, nil
}

var stateFlags = map[string]bool{
	"visible":  true,
	"disabled": true,
	"readOnly": true,
	"loading":  true,
	"required": true,
}

func (ed *EffectDef) effect() (*form.Effect, error) {
	if ed == nil {
		return nil, nil
	}
	eff := &form.Effect{
		Props:     ed.Props,
		Component: ed.Component,
	}

	if len(ed.State) > 0 {
		sp := &form.StatePatch{}
		for flag, v := range ed.State {
			if !stateFlags[flag] {
				return nil, fmt.Errorf("unknown state flag %q", flag)
			}
			switch val := v.(type) {
			case bool:
				b := val
				setFlag(sp, flag, &b)
			case string:
				src, ok := IsExpr(val)
				if !ok {
					return nil, fmt.Errorf("state %s: want bool or {{ expr }}, got %q", flag, val)
				}
				if sp.Exprs == nil {
					sp.Exprs = map[string]string{}
				}
				sp.Exprs[flag] = src
			default:
				return nil, fmt.Errorf("state %s: want bool or {{ expr }}, got %T", flag, v)
			}
		}
		eff.State = sp
	}

	if ed.Value != nil {
		if s, ok := ed.Value.(string); ok {
			if src, isExpr := IsExpr(s); isExpr {
				eff.Value = &form.ValueEffect{Expr: src}
			}
		}
		if eff.Value == nil {
			eff.Value = &form.ValueEffect{Literal: ed.Value}
		}
	}

	if ed.DataSource != nil {
		eff.DataSource = &form.DataSource{Items: ed.DataSource}
	}
	if ed.Run != "" {
		eff.Run = &form.RunEffect{Expr: exprText(ed.Run)}
	}
	return eff, nil
}

func setFlag(sp *form.StatePatch, flag string, b *bool) {
	switch flag {
	case "visible":
		sp.Visible = b
	case "disabled":
		sp.Disabled = b
	case "readOnly":
		sp.ReadOnly = b
	case "loading":
		sp.Loading = b
	case "required":
		sp.Required = b
	}
}

// IsExpr reports whether s is written as "{{ expr }}" and returns the
// trimmed expression.
func IsExpr(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") || len(t) < 4 {
		return "", false
	}
	return strings.TrimSpace(t[2 : len(t)-2]), true
}

// exprText accepts both "{{ expr }}" and a bare expression.
func exprText(s string) string {
	if src, ok := IsExpr(s); ok {
		return src
	}
	return strings.TrimSpace(s)
}
