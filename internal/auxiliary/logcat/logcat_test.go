package logcat_test

import (
	"os/exec"
	"testing"

	"github.com/roost-sandbox/roost/internal/auxiliary/logcat"
	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/stage"

	"github.com/stretchr/testify/require"
)

func TestStartWithoutLogcat(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("logcat"); err == nil {
		t.Skip("skipped, logcat is available here")
	}

	aux, err := logcat.New(plugin.Environment{
		Paths: stage.Paths{Logs: t.TempDir()},
	})
	require.NoError(t, err)

	err = aux.Start(t.Context())
	require.Error(t, err)
	require.True(t, plugin.IsNotImplemented(err))
	require.NoError(t, aux.Stop(t.Context()))
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()
	aux, err := logcat.New(plugin.Environment{
		Paths: stage.Paths{Logs: t.TempDir()},
	})
	require.NoError(t, err)
	require.NoError(t, aux.Stop(t.Context()))
}
