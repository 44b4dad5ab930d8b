package form

import (
	"context"
	"fmt"
	"sync"
)

// Field is a value-carrying node bound to a path in the form's Store. It
// keeps no copy of its value: every read and write goes through the Store.
type Field struct {
	base

	rules             []Rule
	errors            []string
	warnings          []string
	parse             func(any) any
	transform         func(any) any
	submitPath        string
	excludeWhenHidden bool

	lmu       sync.Mutex
	listenID  int
	listeners []valueListener

	vmu    sync.Mutex
	vseq   uint64
	cancel context.CancelFunc
}

type valueListener struct {
	id int
	fn func(value, old any)
}

func newField(f *Form, props Props) *Field {
	fd := &Field{
		rules:             append([]Rule(nil), props.Rules...),
		parse:             props.Parse,
		transform:         props.Transform,
		submitPath:        props.SubmitPath,
		excludeWhenHidden: props.ExcludeWhenHidden,
	}
	fd.base.init(f, props)
	if props.Required {
		fd.rules = seedRequired(fd.rules)
	}
	return fd
}

// seedRequired prepends a required rule unless one is declared.
func seedRequired(rules []Rule) []Rule {
	for _, r := range rules {
		if r.Required {
			return rules
		}
	}
	return append([]Rule{{Required: true}}, rules...)
}

// dropSeededRequired removes bare required rules. Required rules carrying
// a message or triggers were declared by the caller and stay.
func dropSeededRequired(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Required && r.Message == "" && len(r.Triggers) == 0 && r.Custom == nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *Field) Kind() Kind { return KindField }

// Value returns the value at the field's path.
func (f *Field) Value() any {
	v, _ := f.form.store.Get(f.path)
	return v
}

// SetValue parses v, writes it to the Store and notifies value listeners.
func (f *Field) SetValue(v any) error {
	if f.parse != nil {
		v = f.parse(v)
	}
	old := f.Value()
	if err := f.form.store.Set(f.path, v); err != nil {
		return fmt.Errorf("set value %s: %w", f.path, err)
	}

	f.lmu.Lock()
	listeners := append([]valueListener(nil), f.listeners...)
	f.lmu.Unlock()
	for _, l := range listeners {
		l.fn(v, old)
	}

	f.emit(EventFieldValueChange, map[string]any{"value": v})
	f.form.emit(EventFormValuesChange, map[string]any{"path": f.path})
	return nil
}

// OnInput applies a value typed by the user. It marks the field modified
// and validates when the form validates on input.
func (f *Field) OnInput(ctx context.Context, v any) error {
	if err := f.SetValue(v); err != nil {
		return err
	}
	f.mu.Lock()
	f.state.Modified = true
	f.mu.Unlock()
	f.emit(EventFieldInputValueChange, map[string]any{"value": v})

	if f.form.ValidateTrigger() == TriggerOnInput {
		return f.Validate(ctx, TriggerOnInput)
	}
	return nil
}

// OnValueChange registers fn to run after every SetValue and returns its
// unsubscribe func.
func (f *Field) OnValueChange(fn func(value, old any)) func() {
	f.lmu.Lock()
	defer f.lmu.Unlock()
	f.listenID++
	id := f.listenID
	f.listeners = append(f.listeners, valueListener{id: id, fn: fn})
	return func() {
		f.lmu.Lock()
		defer f.lmu.Unlock()
		for i, l := range f.listeners {
			if l.id == id {
				f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

// InitialValue returns the initial value at the field's path.
func (f *Field) InitialValue() any {
	v, _ := f.form.store.Initial(f.path)
	return v
}

// SetInitialValue records v as the initial value and fills the value when
// it is still unset.
func (f *Field) SetInitialValue(v any) error {
	if err := f.form.store.SetInitial(f.path, v); err != nil {
		return fmt.Errorf("set initial value %s: %w", f.path, err)
	}
	if cur, ok := f.form.store.Get(f.path); !ok || cur == nil {
		if err := f.form.store.Set(f.path, v); err != nil {
			return fmt.Errorf("set initial value %s: %w", f.path, err)
		}
	}
	f.emit(EventFieldInitialValueChange, map[string]any{"value": v})
	return nil
}

// Rules returns the validation rules.
func (f *Field) Rules() []Rule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Rule(nil), f.rules...)
}

// AddRule appends r.
func (f *Field) AddRule(r Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, r)
}

// Required reports whether the field is required.
func (f *Field) Required() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Required
}

// SetRequired toggles the required flag and its seeded rule.
func (f *Field) SetRequired(required bool) {
	f.ApplyState(StatePatch{Required: &required})
}

// ApplyState sets the flags present in p and keeps the required rule in
// step with the required flag.
func (f *Field) ApplyState(p StatePatch) {
	f.base.ApplyState(p)
	if p.Required == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if *p.Required {
		f.rules = seedRequired(f.rules)
	} else {
		f.rules = dropSeededRequired(f.rules)
	}
}

// Errors returns the validation errors of the last completed validation.
func (f *Field) Errors() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.errors...)
}

// Warnings returns the validation warnings of the last completed validation.
func (f *Field) Warnings() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.warnings...)
}

// SetFeedback replaces the errors and warnings.
func (f *Field) SetFeedback(errs, warnings []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append([]string(nil), errs...)
	f.warnings = append([]string(nil), warnings...)
}

// Valid reports whether the field has no errors.
func (f *Field) Valid() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.errors) == 0
}

// Validate runs the form's validator on the current value. A call cancels
// the one still in flight for this field; a cancelled call returns nil and
// leaves the feedback alone.
func (f *Field) Validate(ctx context.Context, trigger Trigger) error {
	ctx, cancel := context.WithCancel(ctx)

	f.vmu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.vseq++
	seq := f.vseq
	f.cancel = cancel
	f.vmu.Unlock()

	defer func() {
		f.vmu.Lock()
		if f.vseq == seq {
			f.cancel = nil
		}
		f.vmu.Unlock()
		cancel()
	}()

	vctx := ValidateContext{
		Path:   f.path,
		Label:  f.label,
		Lookup: f.form.store.Get,
	}
	res, err := f.form.validator.Validate(ctx, f.Value(), f.Rules(), vctx, trigger)
	if ctx.Err() != nil || !f.current(seq) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("validate %s: %w", f.path, err)
	}

	f.SetFeedback(res.Errors, res.Warnings)
	if len(res.Errors) > 0 {
		f.emit(EventFieldValidateFailed, map[string]any{"errors": toAnySlice(res.Errors)})
	} else {
		f.emit(EventFieldValidateSuccess, nil)
	}
	return nil
}

func (f *Field) current(seq uint64) bool {
	f.vmu.Lock()
	defer f.vmu.Unlock()
	return f.vseq == seq
}

// Focus marks the field active.
func (f *Field) Focus() {
	f.setFocus(true)
}

// Blur marks the field visited and validates when the form validates on
// blur.
func (f *Field) Blur(ctx context.Context) error {
	f.setFocus(false)
	if f.form.ValidateTrigger() == TriggerOnBlur {
		return f.Validate(ctx, TriggerOnBlur)
	}
	return nil
}

// Reset restores the initial value and clears feedback and interaction
// flags. Reactions stay registered.
func (f *Field) Reset() error {
	if err := f.restoreValue(); err != nil {
		return err
	}
	f.clearFeedback()
	f.emit(EventFieldReset, nil)
	return nil
}

func (f *Field) restoreValue() error {
	if v, ok := f.form.store.Initial(f.path); ok {
		return f.form.store.Set(f.path, v)
	}
	if f.form.store.Exists(f.path) {
		return f.form.store.Set(f.path, nil)
	}
	return nil
}

func (f *Field) clearFeedback() {
	f.SetFeedback(nil, nil)
	f.clearInteraction()
}

// Transform returns the submit transform, if any.
func (f *Field) Transform() func(any) any { return f.transform }

// SubmitPath returns the submit path override, if any.
func (f *Field) SubmitPath() string { return f.submitPath }

// ExcludeWhenHidden reports whether a hidden field is left out of submits.
func (f *Field) ExcludeWhenHidden() bool { return f.excludeWhenHidden }

// Snapshot implements Node.
func (f *Field) Snapshot() map[string]any {
	s := f.snapshot()
	s["value"] = f.Value()
	s["errors"] = toAnySlice(f.Errors())
	return s
}

func (f *Field) Mount()   { f.emit(EventFieldMount, nil) }
func (f *Field) Unmount() { f.emit(EventFieldUnmount, nil) }

func (f *Field) dispose() {
	if !f.disposed.CompareAndSwap(false, true) {
		return
	}
	f.vmu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.vseq++
	f.vmu.Unlock()

	f.lmu.Lock()
	f.listeners = nil
	f.lmu.Unlock()
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
