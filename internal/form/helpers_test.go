package form

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/formlink/internal/reactive"
	"github.com/roach88/formlink/internal/testutil"
)

// requiredValidator flags empty values of required rules and reports a
// warning for rules marked as warnings.
type requiredValidator struct{}

func (requiredValidator) Validate(_ context.Context, value any, rules []Rule, vctx ValidateContext, trigger Trigger) (ValidateResult, error) {
	res := ValidateResult{}
	for _, r := range rules {
		if !r.AppliesTo(trigger) {
			continue
		}
		if r.Required && isEmpty(value) {
			msg := r.Message
			if msg == "" {
				msg = vctx.Path + " is required"
			}
			if r.Warning {
				res.Warnings = append(res.Warnings, msg)
			} else {
				res.Errors = append(res.Errors, msg)
			}
		}
		if r.Custom != nil {
			if msg := r.Custom(value, vctx); msg != "" {
				res.Errors = append(res.Errors, msg)
			}
		}
	}
	return res, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func newTestForm(t *testing.T, opts ...Option) *Form {
	t.Helper()
	base := []Option{
		WithBackend(reactive.NewRuntime(reactive.WithLogger(testutil.DiscardLogger()))),
		WithValidator(requiredValidator{}),
		WithLogger(testutil.DiscardLogger()),
		WithIDGenerator(testutil.NewSequenceGenerator("node")),
	}
	f, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(f.Dispose)
	return f
}

func mustField(t *testing.T, f *Form, props Props) *Field {
	t.Helper()
	fd, err := f.CreateField(props)
	require.NoError(t, err)
	return fd
}

func mustArray(t *testing.T, f *Form, props Props) *ArrayField {
	t.Helper()
	a, err := f.CreateArrayField(props)
	require.NoError(t, err)
	return a
}

// recorder collects emitted event types.
type recorder struct {
	mu    sync.Mutex
	types []EventType
}

func (r *recorder) attach(b *EventBus) {
	b.OnAny(func(e Event) {
		r.mu.Lock()
		r.types = append(r.types, e.Type)
		r.mu.Unlock()
	})
}

func (r *recorder) has(t EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }
