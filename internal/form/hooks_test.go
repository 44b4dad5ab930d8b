package form

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tracing(log *[]string, name string) Middleware {
	return func(ctx context.Context, next func(context.Context) error) error {
		*log = append(*log, name+":before")
		err := next(ctx)
		*log = append(*log, name+":after")
		return err
	}
}

func TestPipeline_OnionOrder(t *testing.T) {
	p := NewPipeline()
	var log []string
	p.Use(HookValidate, 20, tracing(&log, "inner"))
	p.Use(HookValidate, 10, tracing(&log, "outer"))

	err := p.Run(context.Background(), HookValidate, func(context.Context) error {
		log = append(log, "core")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"outer:before", "inner:before", "core", "inner:after", "outer:after",
	}, log)
}

func TestPipeline_EqualPrioritiesKeepRegistrationOrder(t *testing.T) {
	p := NewPipeline()
	var log []string
	for _, name := range []string{"a", "b", "c"} {
		p.Use(HookReset, 0, tracing(&log, name))
	}

	require.NoError(t, p.Run(context.Background(), HookReset, func(context.Context) error { return nil }))
	assert.Equal(t, []string{"a:before", "b:before", "c:before", "c:after", "b:after", "a:after"}, log)
	assert.Equal(t, 3, p.Len(HookReset))
	assert.Zero(t, p.Len(HookSubmit))
}

func TestPipeline_ChainsAreSeparate(t *testing.T) {
	p := NewPipeline()
	var log []string
	p.Use(HookSubmit, 0, tracing(&log, "submit"))

	require.NoError(t, p.Run(context.Background(), HookSetValues, func(context.Context) error { return nil }))
	assert.Empty(t, log)
}

func TestPipeline_ShortCircuitAndError(t *testing.T) {
	p := NewPipeline()
	boom := errors.New("boom")
	p.Use(HookSubmit, 0, func(context.Context, func(context.Context) error) error {
		return boom
	})

	called := false
	err := p.Run(context.Background(), HookSubmit, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestPipeline_ContextFlowsThrough(t *testing.T) {
	type key struct{}
	p := NewPipeline()
	p.Use(HookValidate, 0, func(ctx context.Context, next func(context.Context) error) error {
		return next(context.WithValue(ctx, key{}, "set"))
	})

	var got any
	require.NoError(t, p.Run(context.Background(), HookValidate, func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}))
	assert.Equal(t, "set", got)
}

func TestPipeline_CreateFieldOrder(t *testing.T) {
	p := NewPipeline()
	p.UseCreateField(5, func(props Props, next func(Props) (Node, error)) (Node, error) {
		props.Label += "-inner"
		return next(props)
	})
	p.UseCreateField(1, func(props Props, next func(Props) (Node, error)) (Node, error) {
		props.Label += "-outer"
		return next(props)
	})

	var seen Props
	_, err := p.RunCreateField(Props{Label: "x"}, func(props Props) (Node, error) {
		seen = props
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "x-outer-inner", seen.Label)
}
