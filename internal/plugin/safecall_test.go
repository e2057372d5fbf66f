package plugin_test

import (
	"errors"
	"testing"

	"github.com/roost-sandbox/roost/internal/plugin"

	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	t.Parallel()

	t.Run("plain error passes through", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		err := plugin.Call(t.Context(), "apk", "start", func() error { return boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("panic becomes PanicError", func(t *testing.T) {
		t.Parallel()
		err := plugin.Call(t.Context(), "apk", "start", func() error { panic("kaboom") })
		var pe *plugin.PanicError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "apk", pe.Plugin)
		require.Equal(t, "start", pe.Op)
		require.ErrorContains(t, err, "kaboom")
	})

	t.Run("nil error stays nil", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, plugin.Call(t.Context(), "apk", "finish", func() error { return nil }))
	})
}

func TestCallCheck(t *testing.T) {
	t.Parallel()

	t.Run("result passes through", func(t *testing.T) {
		t.Parallel()
		ok, err := plugin.CallCheck(t.Context(), "apk", func() (bool, error) { return false, nil })
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("panic keeps the loop running", func(t *testing.T) {
		t.Parallel()
		ok, err := plugin.CallCheck(t.Context(), "apk", func() (bool, error) { panic("kaboom") })
		require.Error(t, err)
		require.True(t, ok)
	})
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	require.True(t, plugin.IsNotImplemented(plugin.ErrNotImplemented))
	require.True(t, plugin.IsNotImplemented(errors.Join(errors.New("x"), plugin.ErrNotImplemented)))
	require.False(t, plugin.IsNotImplemented(errors.New("other")))

	op := plugin.Operational("monkey returned %d", 252)
	require.True(t, plugin.IsOperational(op))
	require.ErrorContains(t, op, "monkey returned 252")
	require.False(t, plugin.IsOperational(errors.New("other")))
}
