package process_test

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/roost-sandbox/roost/internal/process"

	"github.com/stretchr/testify/require"
)

func TestRunner(t *testing.T) {
	t.Parallel()
	yes, err := exec.LookPath("yes")
	if err != nil {
		t.Skipf("skipped, binary yes not available: %v", err)
	}

	runner := process.NewRunner()
	t.Run("not yet started", func(t *testing.T) {
		res := runner.Result()
		require.ErrorIs(t, res.Err, process.ErrNotStarted)
		require.False(t, runner.Alive())
		require.ErrorIs(t, runner.Kill(), process.ErrNotStarted)
	})

	cmd := process.Command{
		Path:    yes,
		Args:    []string{"golang"},
		Env:     []string{"LC_ALL=C"},
		Timeout: 100 * time.Millisecond,
	}
	ctx := t.Context()

	t.Run("start", func(t *testing.T) {
		err = runner.Start(ctx, cmd, nil)
		require.NoError(t, err)
		require.True(t, runner.Alive())
	})
	t.Run("in progress", func(t *testing.T) {
		err = runner.Start(ctx, cmd, nil)
		require.ErrorIs(t, err, process.ErrInProgress)
	})
	t.Run("wait", func(t *testing.T) {
		res := <-runner.WaitChan()
		require.Equal(t, yes, res.Path)
		require.Equal(t, []string{"golang"}, res.Args)
		require.NotZero(t, res.Started)
		require.NotZero(t, res.Stopped)
		require.Error(t, res.Err) // killed by the timeout
		require.True(t, strings.HasPrefix(res.Stdout.String(), "golang\ngolang\n"))
		require.False(t, runner.Alive())
	})
	t.Run("exec error", func(t *testing.T) {
		noCmd := process.Command{
			Path: "does not exist",
		}
		err := runner.Start(ctx, noCmd, nil)
		var execErr *exec.Error
		require.ErrorAs(t, err, &execErr)
	})
}

func TestRunnerStderr(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	cmd := process.Command{
		Path: sh,
		Args: []string{"-c", "echo stdout; echo 1>&2 stderr; echo 1>&2 stderr"},
	}

	var stderr []string
	handle := func(_ context.Context, line string) {
		stderr = append(stderr, line)
	}

	runner := process.NewRunner()
	err = runner.Start(t.Context(), cmd, handle)
	require.NoError(t, err)
	res := <-runner.WaitChan()
	require.NoError(t, res.Err)
	require.Equal(t, "stdout\n", res.Stdout.String())
	require.Equal(t, []string{"stderr", "stderr"}, stderr)
}

func TestRunnerStdoutOverride(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	var buf bytes.Buffer
	runner := process.NewRunner()
	err = runner.Start(t.Context(), process.Command{
		Path:   sh,
		Args:   []string{"-c", "echo captured"},
		Stdout: &buf,
	}, nil)
	require.NoError(t, err)
	res := <-runner.WaitChan()
	require.NoError(t, res.Err)
	require.Nil(t, res.Stdout)
	require.Equal(t, "captured\n", buf.String())
}

func TestOutput(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	out, err := process.Output(t.Context(), sh, "-c", "echo 4242")
	require.NoError(t, err)
	require.Equal(t, "4242", out)

	_, err = process.Output(t.Context(), sh, "-c", "echo 1>&2 oops; exit 3")
	require.Error(t, err)
	require.Contains(t, err.Error(), "oops")
}
