package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

// ---------------------------------------------------------------------------
// Helper types used across multiple tests
// ---------------------------------------------------------------------------

type testArgs struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type stubUnit struct{ id string }

func (u *stubUnit) ID() string                                       { return u.id }
func (u *stubUnit) Body() []byte                                     { return nil }
func (u *stubUnit) TimeToRun(context.Context) (time.Duration, error) { return time.Minute, nil }
func (u *stubUnit) Delete(context.Context) error                     { return nil }
func (u *stubUnit) Bury(context.Context) error                       { return nil }
func (u *stubUnit) Touch(context.Context) error                      { return nil }

// ---------------------------------------------------------------------------
// NewHandler – nil / non-function rejection
// ---------------------------------------------------------------------------

func TestNewHandler_RejectsNil(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestNewHandler_RejectsTypedNil(t *testing.T) {
	var fn func(ctx context.Context, args string) error
	_, err := NewHandler(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestNewHandler_RejectsNonFunction(t *testing.T) {
	for _, v := range []any{"not a function", 42, testArgs{Name: "x"}} {
		_, err := NewHandler(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "function")
	}
}

// ---------------------------------------------------------------------------
// NewHandler – signature validation
// ---------------------------------------------------------------------------

func TestNewHandler_AcceptsNoParameters(t *testing.T) {
	called := false
	h, err := NewHandler(func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, h.HasContext)
	assert.Nil(t, h.ArgsType)
	assert.False(t, h.Extended)

	require.NoError(t, h.Execute(context.Background(), map[string]any{"ignored": 1}, nil, core.StyleOptions{}))
	assert.True(t, called)
}

func TestNewHandler_AcceptsContextOnly(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context) error { return errors.New("ctx only") })
	require.NoError(t, err)
	assert.True(t, h.HasContext)
	assert.Nil(t, h.ArgsType)

	assert.EqualError(t, h.Execute(context.Background(), nil, nil, core.StyleOptions{}), "ctx only")
}

func TestNewHandler_RejectsFiveArgs(t *testing.T) {
	fn := func(_ context.Context, _ map[string]any, _ core.Unit, _ core.StyleOptions, _ int) error { return nil }
	_, err := NewHandler(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 4 arguments")
}

func TestNewHandler_RejectsDanglingParameter(t *testing.T) {
	fn := func(_ context.Context, _ string, _ int) error { return nil }
	_, err := NewHandler(fn)
	require.Error(t, err)
}

func TestNewHandler_RejectsWrongExtendedTypes(t *testing.T) {
	fn := func(_ context.Context, _ map[string]any, _ string, _ core.StyleOptions) error { return nil }
	_, err := NewHandler(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extended")
}

func TestNewHandler_RejectsUnitInArgsPosition(t *testing.T) {
	fn := func(_ context.Context, _ core.Unit, _ core.StyleOptions) error { return nil }
	_, err := NewHandler(fn)
	require.Error(t, err)
}

func TestNewHandler_RejectsBadReturn(t *testing.T) {
	_, err := NewHandler(func(_ context.Context, _ string) string { return "" })
	require.Error(t, err)

	_, err = NewHandler(func(_ context.Context, _ string) {})
	require.Error(t, err)
}

func TestNewHandler_AcceptsClassicShapes(t *testing.T) {
	shapes := []any{
		func(_ context.Context, _ map[string]any) error { return nil },
		func(_ map[string]any) error { return nil },
		func(_ context.Context, _ testArgs) error { return nil },
		func(_ context.Context) error { return nil },
		func(_ context.Context, _ testArgs) (int, error) { return 0, nil },
	}

	for _, fn := range shapes {
		h, err := NewHandler(fn)
		require.NoError(t, err)
		assert.False(t, h.Extended)
	}
}

func TestNewHandler_AcceptsExtendedShapes(t *testing.T) {
	withCtx, err := NewHandler(func(_ context.Context, _ map[string]any, _ core.Unit, _ core.StyleOptions) error { return nil })
	require.NoError(t, err)
	assert.True(t, withCtx.Extended)
	assert.True(t, withCtx.HasContext)

	noCtx, err := NewHandler(func(_ testArgs, _ core.Unit, _ core.StyleOptions) error { return nil })
	require.NoError(t, err)
	assert.True(t, noCtx.Extended)
	assert.False(t, noCtx.HasContext)
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecute_MapArgsPassedThrough(t *testing.T) {
	var got map[string]any
	h, err := NewHandler(func(_ context.Context, args map[string]any) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	args := map[string]any{"val": 42.0}
	require.NoError(t, h.Execute(context.Background(), args, nil, core.StyleOptions{}))
	assert.Equal(t, args, got)
}

func TestExecute_StructArgsDecoded(t *testing.T) {
	var got testArgs
	h, err := NewHandler(func(_ context.Context, args testArgs) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	err = h.Execute(context.Background(), map[string]any{"name": "n", "value": 3.0}, nil, core.StyleOptions{})
	require.NoError(t, err)
	assert.Equal(t, testArgs{Name: "n", Value: 3}, got)
}

func TestExecute_AnyArgs(t *testing.T) {
	var got any
	h, err := NewHandler(func(args any) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.Execute(context.Background(), map[string]any{"a": "b"}, nil, core.StyleOptions{}))
	assert.Equal(t, map[string]any{"a": "b"}, got)
}

func TestExecute_NilArgsBecomeEmptyMap(t *testing.T) {
	var got map[string]any
	h, err := NewHandler(func(args map[string]any) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.Execute(context.Background(), nil, nil, core.StyleOptions{}))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExecute_ArgsTypeMismatch(t *testing.T) {
	h, err := NewHandler(func(_ context.Context, _ testArgs) error { return nil })
	require.NoError(t, err)

	err = h.Execute(context.Background(), map[string]any{"value": "not a number"}, nil, core.StyleOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal args")
}

func TestExecute_ExtendedReceivesUnitAndOptions(t *testing.T) {
	var gotUnit core.Unit
	var gotOpts core.StyleOptions
	h, err := NewHandler(func(_ context.Context, _ map[string]any, unit core.Unit, opts core.StyleOptions) error {
		gotUnit = unit
		gotOpts = opts
		return nil
	})
	require.NoError(t, err)

	unit := &stubUnit{id: "42"}
	opts := core.StyleOptions{ExplicitDelete: true}
	require.NoError(t, h.Execute(context.Background(), nil, unit, opts))

	assert.Same(t, unit, gotUnit)
	assert.Equal(t, opts, gotOpts)
}

func TestExecute_ExtendedWithNilUnit(t *testing.T) {
	var called bool
	h, err := NewHandler(func(_ map[string]any, unit core.Unit, _ core.StyleOptions) error {
		called = true
		assert.Nil(t, unit)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.Execute(context.Background(), nil, nil, core.StyleOptions{}))
	assert.True(t, called)
}

func TestExecute_ReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	h, err := NewHandler(func(_ context.Context, _ map[string]any) error { return boom })
	require.NoError(t, err)

	assert.ErrorIs(t, h.Execute(context.Background(), nil, nil, core.StyleOptions{}), boom)
}

func TestExecute_ResultAndErrorReturn(t *testing.T) {
	boom := errors.New("boom")
	h, err := NewHandler(func(_ context.Context, _ map[string]any) (string, error) { return "", boom })
	require.NoError(t, err)

	assert.ErrorIs(t, h.Execute(context.Background(), nil, nil, core.StyleOptions{}), boom)
}

func TestExecute_PassesContext(t *testing.T) {
	type key struct{}
	var got any
	h, err := NewHandler(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), key{}, "marker")
	require.NoError(t, h.Execute(ctx, nil, nil, core.StyleOptions{}))
	assert.Equal(t, "marker", got)
}
