package form

import (
	"context"
	"errors"
	"sync"
)

// Validate validates the visible fields matching pattern, or every visible
// field when pattern is empty. Hidden fields are skipped and keep their
// previous feedback. It returns a *FeedbackError when a validated field has
// errors.
func (f *Form) Validate(ctx context.Context, pattern string) error {
	return f.hooks.Run(ctx, HookValidate, func(ctx context.Context) error {
		return f.validateFields(ctx, f.validationTargets(pattern), "")
	})
}

func (f *Form) validationTargets(pattern string) []*Field {
	var candidates []*Field
	if pattern == "" {
		candidates = f.Fields()
	} else {
		candidates = f.QueryFields(pattern)
	}
	out := make([]*Field, 0, len(candidates))
	for _, fd := range candidates {
		if fd.Visible() {
			out = append(out, fd)
		}
	}
	return out
}

// validateFields runs field validations concurrently and aggregates their
// feedback in the order of targets.
func (f *Form) validateFields(ctx context.Context, targets []*Field, trigger Trigger) error {
	f.setFlag(&f.validating, true)
	defer f.setFlag(&f.validating, false)
	f.emit(EventFormValidateStart, nil)

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, fd := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fd.Validate(ctx, trigger)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		f.emit(EventFormValidateFailed, map[string]any{"error": err.Error()})
		return err
	}

	fe := &FeedbackError{Errors: []Feedback{}, Warnings: []Feedback{}}
	for _, fd := range targets {
		if msgs := fd.Errors(); len(msgs) > 0 {
			fe.Errors = append(fe.Errors, Feedback{Path: fd.Path(), Messages: msgs})
		}
		if ws := fd.Warnings(); len(ws) > 0 {
			fe.Warnings = append(fe.Warnings, Feedback{Path: fd.Path(), Messages: ws})
		}
	}

	if len(fe.Errors) > 0 {
		f.emit(EventFormValidateFailed, map[string]any{"paths": toAnySlice(fe.Paths())})
		return fe
	}
	f.emit(EventFormValidateSuccess, nil)
	return nil
}
