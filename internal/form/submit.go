package form

import (
	"context"
	"fmt"

	"github.com/roach88/formlink/internal/path"
)

// Submit validates the form and, when it is valid, builds the submit
// payload and passes it to onSubmit. On validation failure it focuses the
// first field with errors and returns the *FeedbackError without building a
// payload or calling onSubmit.
func (f *Form) Submit(ctx context.Context, onSubmit SubmitFunc) (map[string]any, error) {
	var payload map[string]any
	err := f.hooks.Run(ctx, HookSubmit, func(ctx context.Context) error {
		f.setFlag(&f.submitting, true)
		defer f.setFlag(&f.submitting, false)

		f.emit(EventFormSubmitStart, nil)
		defer f.emit(EventFormSubmitEnd, nil)

		if err := f.validateFields(ctx, f.validationTargets(""), ""); err != nil {
			if fe, ok := AsFeedbackError(err); ok && len(fe.Errors) > 0 {
				if fd, found := f.Field(fe.Errors[0].Path); found {
					fd.Focus()
				}
				f.emit(EventFormSubmitFailed, map[string]any{"paths": toAnySlice(fe.Paths())})
			} else {
				f.emit(EventFormSubmitFailed, map[string]any{"error": err.Error()})
			}
			return err
		}

		built := f.buildPayload()
		if onSubmit != nil {
			if err := onSubmit(ctx, built); err != nil {
				f.emit(EventFormSubmitFailed, map[string]any{"error": err.Error()})
				return fmt.Errorf("submit: %w", err)
			}
		}
		payload = built
		f.emit(EventFormSubmitSuccess, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// buildPayload deep-copies the value tree and applies the per-field submit
// options: stale paths are skipped, hidden fields flagged ExcludeWhenHidden
// are dropped, transforms run and values move to their submit paths.
func (f *Form) buildPayload() map[string]any {
	values := f.store.Values()
	for _, fd := range f.Fields() {
		p := fd.Path()
		v, exists := path.Get(values, p)
		if !exists {
			continue
		}
		if fd.ExcludeWhenHidden() && !fd.Visible() {
			dropAt(values, p)
			continue
		}

		transform := fd.Transform()
		target := fd.SubmitPath()
		if transform == nil && target == "" {
			continue
		}
		if transform != nil {
			v = transform(v)
		}
		if target != "" && target != p {
			dropAt(values, p)
			p = target
		}
		if err := path.Set(values, p, v); err != nil {
			f.logger.Warn("submit payload remap failed", "form", f.id, "path", p, "error", err)
		}
	}
	return values
}

// dropAt removes the value at p. Array elements become nil instead of
// being spliced so sibling indices stay valid.
func dropAt(values map[string]any, p string) {
	if _, isIndex := path.Index(path.Base(p)); isIndex {
		_ = path.Set(values, p, nil)
		return
	}
	path.Delete(values, p)
}
