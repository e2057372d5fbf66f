// Package process wraps os/exec for the analysis packages: tracked
// long-running targets and short guest tool invocations.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotStarted = errors.New("process not started")
	ErrInProgress = errors.New("process already running")
)

// LineFunc receives one line of the tracked process stderr.
type LineFunc func(ctx context.Context, line string)

// Command is a prototype of a process to run.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Dir     string
	Stdout  io.Writer // optional, defaults to an in-memory buffer
	Timeout time.Duration
}

// Result describes a finished (or failed to start) process.
type Result struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Stdout  *bytes.Buffer // nil when Command.Stdout was supplied
	Err     error
}

// Runner tracks at most one running process at a time.
type Runner struct {
	mx         sync.RWMutex
	cmd        *exec.Cmd
	cancelFunc context.CancelFunc
	result     Result
	waits      []chan Result
}

func NewRunner() *Runner {
	return &Runner{
		result: Result{Err: ErrNotStarted},
	}
}

// Start launches the process described by proto. It ensures only a
// single instance is active, returning ErrInProgress otherwise. Start
// does not wait for completion, use WaitChan. An internal goroutine
// monitors the command and pumps stderr into stderrFunc when given.
func (r *Runner) Start(ctx context.Context, proto Command, stderrFunc LineFunc) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd != nil {
		return ErrInProgress
	}

	r.result = Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}

	if proto.Timeout != 0 {
		ctx, r.cancelFunc = context.WithTimeout(ctx, proto.Timeout)
	}

	r.cmd = exec.CommandContext(ctx, r.result.Path, r.result.Args...)
	r.cmd.Env = proto.Env
	r.cmd.Dir = proto.Dir

	var stderr io.ReadCloser
	if stderrFunc != nil {
		var err error
		stderr, err = r.cmd.StderrPipe()
		if err != nil {
			r.cmd = nil
			return err
		}
	}
	if proto.Stdout != nil {
		r.cmd.Stdout = proto.Stdout
	} else {
		var buf bytes.Buffer
		r.result.Stdout = &buf
		r.cmd.Stdout = &buf
	}

	r.result.Started = time.Now().UTC()
	if err := r.cmd.Start(); err != nil {
		r.result.Stopped = time.Now().UTC()
		r.result.Err = err
		r.cmd = nil
		return err
	}

	pumped := make(chan struct{})
	if stderr != nil {
		go func() {
			defer close(pumped)
			r.processStderr(ctx, stderr, stderrFunc)
		}()
	} else {
		close(pumped)
	}
	go r.wait(r.cmd, pumped)
	return nil
}

func (r *Runner) processStderr(ctx context.Context, stderr io.Reader, stderrFunc LineFunc) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		stderrFunc(ctx, scanner.Text())
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		slog.ErrorContext(ctx, "processing stderr", "error", err)
	}
}

func (r *Runner) wait(cmd *exec.Cmd, pumped <-chan struct{}) {
	// Wait closes the stderr pipe, so the pump has to drain it first
	<-pumped
	err := cmd.Wait()
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	stopped := time.Now().UTC()

	r.mx.Lock()
	defer r.mx.Unlock()
	r.result.Stopped = stopped
	r.result.State = cmd.ProcessState
	r.result.Err = err
	r.cmd = nil
	for _, ch := range r.waits {
		ch <- r.result
		close(ch)
	}
	r.waits = nil
}

// WaitChan returns a channel delivering the result of the running
// process. The channel is closed once the process ends.
func (r *Runner) WaitChan() <-chan Result {
	ch := make(chan Result, 1)
	r.mx.Lock()
	r.waits = append(r.waits, ch)
	r.mx.Unlock()
	return ch
}

// Alive reports whether the tracked process is still running.
func (r *Runner) Alive() bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.cmd != nil
}

// Kill terminates the tracked process. ErrNotStarted when nothing runs.
func (r *Runner) Kill() error {
	r.mx.RLock()
	defer r.mx.RUnlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return ErrNotStarted
	}
	return r.cmd.Process.Kill()
}

// Result returns the last result, or a Result with ErrNotStarted when
// nothing ran yet.
func (r *Runner) Result() Result {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.result
}

// Output runs a short guest tool invocation to completion and returns
// its trimmed stdout. Used for pm/am/pidof style helpers where the
// output is a single token or nothing.
func Output(ctx context.Context, path string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %w: %s", path, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}
