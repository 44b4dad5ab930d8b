package form

import (
	"context"
	"errors"
)

// Reset restores form values as one batch.
//
// With Paths set, only the matching fields are reset. With ForceClear,
// every top-level value becomes the empty value of its kind; nested values
// are not visited. Otherwise the initial values are restored onto the
// existing value tree. Both whole-form variants clear the feedback and
// interaction flags of every node.
func (f *Form) Reset(ctx context.Context, opts ResetOptions) error {
	return f.hooks.Run(ctx, HookReset, func(ctx context.Context) error {
		var (
			err     error
			touched []*Field
		)
		f.Batch(func() {
			switch {
			case len(opts.Paths) > 0:
				for _, fd := range f.Fields() {
					if !matchAny(opts.Paths, fd.Path()) {
						continue
					}
					touched = append(touched, fd)
					err = errors.Join(err, fd.Reset())
				}
			case opts.ForceClear:
				f.store.Clear()
				f.clearAllFeedback()
			default:
				f.store.Restore()
				f.clearAllFeedback()
			}
		})
		if err != nil {
			return err
		}

		f.emit(EventFormReset, map[string]any{"forceClear": opts.ForceClear})

		if !opts.Validate {
			return nil
		}
		if len(opts.Paths) > 0 {
			visible := make([]*Field, 0, len(touched))
			for _, fd := range touched {
				if fd.Visible() {
					visible = append(visible, fd)
				}
			}
			return f.validateFields(ctx, visible, "")
		}
		return f.validateFields(ctx, f.validationTargets(""), "")
	})
}

func (f *Form) clearAllFeedback() {
	for _, n := range f.registry.list() {
		if fd, ok := valueField(n); ok {
			fd.clearFeedback()
			continue
		}
		if v, ok := n.(*VoidField); ok {
			v.clearInteraction()
		}
	}
}
