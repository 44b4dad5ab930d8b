package linkage

import (
	"fmt"
	"reflect"

	"github.com/roach88/formlink/internal/form"
)

// plan is an effect with every expression already evaluated, so applying
// it cannot fail halfway.
type plan struct {
	state     *form.StatePatch
	hasValue  bool
	value     any
	props     map[string]any
	component string
	items     []any
	load      form.DataLoader
	run       *form.RunEffect
}

func (e *Engine) plan(eff *form.Effect, s form.Scope) (plan, error) {
	p := plan{
		props:     eff.Props,
		component: eff.Component,
		run:       eff.Run,
	}

	if eff.State != nil {
		st, err := e.resolveState(*eff.State, s)
		if err != nil {
			return plan{}, err
		}
		p.state = &st
	}

	if v := eff.Value; v != nil {
		p.hasValue = true
		switch {
		case v.Func != nil:
			p.value = v.Func(s)
		case v.Expr != "":
			val, err := e.eval(v.Expr, s)
			if err != nil {
				return plan{}, err
			}
			p.value = val
		default:
			p.value = v.Literal
		}
	}

	if ds := eff.DataSource; ds != nil {
		p.items = ds.Items
		p.load = ds.Load
	}
	return p, nil
}

// resolveState folds the expression flags of sp into plain flags.
func (e *Engine) resolveState(sp form.StatePatch, s form.Scope) (form.StatePatch, error) {
	out := form.StatePatch{
		Visible:  sp.Visible,
		Disabled: sp.Disabled,
		ReadOnly: sp.ReadOnly,
		Loading:  sp.Loading,
		Required: sp.Required,
	}
	for flag, expr := range sp.Exprs {
		v, err := e.eval(expr, s)
		if err != nil {
			return form.StatePatch{}, err
		}
		b := truthy(v)
		switch flag {
		case "visible":
			out.Visible = &b
		case "disabled":
			out.Disabled = &b
		case "readOnly":
			out.ReadOnly = &b
		case "loading":
			out.Loading = &b
		case "required":
			out.Required = &b
		default:
			return form.StatePatch{}, fmt.Errorf("unknown state flag %q", flag)
		}
	}
	return out, nil
}

// apply writes p to target in one batch.
func (e *Engine) apply(c *rule, target form.Node, p plan, s form.Scope) {
	e.form.Batch(func() {
		if p.state != nil {
			target.ApplyState(*p.state)
		}
		if p.hasValue {
			if fd, ok := e.form.Field(target.Path()); ok {
				if err := fd.SetValue(p.value); err != nil {
					e.logger.Warn("reaction value not applied",
						"form", e.form.ID(),
						"rule", c.key,
						"error", err)
				}
			}
		}
		if len(p.props) > 0 {
			target.MergeComponentProps(p.props)
		}
		if p.component != "" {
			target.SetComponent(p.component)
		}
		if p.items != nil {
			target.SetDataSource(p.items)
		}
		if p.load != nil {
			e.load(c, target, p.load, s)
		}
		if p.run != nil {
			e.runEffect(c, p.run, s)
		}
	})
}

func (e *Engine) runEffect(c *rule, r *form.RunEffect, s form.Scope) {
	switch {
	case r.Func != nil:
		r.Func(s)
	case r.Expr != "":
		if _, err := e.eval(r.Expr, s); err != nil {
			e.report(newEvalDiagnostic(c.owner, c.key, err))
		}
	}
}

// load fetches data-source items in the background. Only the most recent
// load of a node may apply its items; failures are logged and dropped.
func (e *Engine) load(c *rule, target form.Node, loader form.DataLoader, s form.Scope) {
	gen := target.NextLoad()
	on, off := true, false
	target.ApplyState(form.StatePatch{Loading: &on})

	e.loads.Add(1)
	go func() {
		defer e.loads.Done()
		defer func() {
			if p := recover(); p != nil {
				e.logger.Debug("data source load panicked",
					"form", e.form.ID(),
					"rule", c.key,
					"panic", fmt.Sprint(p))
			}
		}()

		items, err := loader(e.ctx, s)
		if e.ctx.Err() != nil {
			return
		}
		if target.CurrentLoad() != gen {
			e.logger.Debug("stale data source load dropped",
				"form", e.form.ID(),
				"rule", c.key,
				"generation", gen)
			return
		}
		if err != nil {
			e.logger.Debug("data source load failed",
				"form", e.form.ID(),
				"rule", c.key,
				"error", err)
			target.ApplyState(form.StatePatch{Loading: &off})
			return
		}
		target.SetDataSource(items)
		target.ApplyState(form.StatePatch{Loading: &off})
	}()
}

// truthy maps an evaluated expression result to a condition outcome. Nil,
// false, zero numbers and empty strings or collections are false.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
