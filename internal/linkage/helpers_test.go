package linkage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/reactive"
	"github.com/roach88/formlink/internal/testutil"
)

type acceptAll struct{}

func (acceptAll) Validate(context.Context, any, []form.Rule, form.ValidateContext, form.Trigger) (form.ValidateResult, error) {
	return form.ValidateResult{}, nil
}

// funcEvaluator maps expression strings to Go funcs over the scope.
type funcEvaluator map[string]func(vars map[string]any) any

func (fe funcEvaluator) Evaluate(expr string, vars map[string]any) (any, error) {
	fn, ok := fe[expr]
	if !ok {
		return nil, fmt.Errorf("unknown expression %q", expr)
	}
	return fn(vars), nil
}

func newLinkedForm(t *testing.T, opts ...form.Option) (*form.Form, *Engine) {
	t.Helper()
	return newLinkedFormWith(t, nil, opts...)
}

func newLinkedFormWith(t *testing.T, engineOpts []Option, opts ...form.Option) (*form.Form, *Engine) {
	t.Helper()
	var eng *Engine
	base := []form.Option{
		form.WithBackend(reactive.NewRuntime(reactive.WithLogger(testutil.DiscardLogger()))),
		form.WithValidator(acceptAll{}),
		form.WithLogger(testutil.DiscardLogger()),
		form.WithIDGenerator(testutil.NewSequenceGenerator("node")),
		form.WithLinker(func(f *form.Form) form.Linker {
			eng = New(f, engineOpts...)
			return eng
		}),
	}
	f, err := form.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(f.Dispose)
	return f, eng
}

func mustField(t *testing.T, f *form.Form, props form.Props) *form.Field {
	t.Helper()
	fd, err := f.CreateField(props)
	require.NoError(t, err)
	return fd
}

func num(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func boolPtr(b bool) *bool { return &b }
