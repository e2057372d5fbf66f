// Package logcat captures the system log for the whole analysis into
// the results tree.
package logcat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/process"
)

func init() {
	plugin.Default.MustRegisterAuxiliary("logcat", New)
}

// Module pumps logcat output into results/logs/logcat.log from Start
// until Stop. The capture runs in its own process, the supervisor only
// pays for the start and stop calls.
type Module struct {
	logPath string
	runner  *process.Runner
	out     *os.File
	wait    <-chan process.Result
}

func New(env plugin.Environment) (plugin.Auxiliary, error) {
	return &Module{
		logPath: filepath.Join(env.Paths.Logs, "logcat.log"),
		runner:  process.NewRunner(),
	}, nil
}

func (m *Module) Start(ctx context.Context) error {
	binary, err := exec.LookPath("logcat")
	if err != nil {
		return fmt.Errorf("logcat binary: %w", plugin.ErrNotImplemented)
	}

	m.out, err = os.Create(m.logPath)
	if err != nil {
		return fmt.Errorf("creating capture log: %w", err)
	}

	err = m.runner.Start(ctx, process.Command{
		Path:   binary,
		Args:   []string{"-v", "threadtime"},
		Stdout: m.out,
	}, nil)
	if err != nil {
		_ = m.out.Close()
		m.out = nil
		return fmt.Errorf("starting logcat: %w", err)
	}
	// registered while the capture runs, so Stop never blocks on a
	// process which already ended
	m.wait = m.runner.WaitChan()
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.out == nil {
		return nil
	}

	var errs []error
	if err := m.runner.Kill(); err != nil && !errors.Is(err, process.ErrNotStarted) {
		errs = append(errs, err)
	}
	<-m.wait // reaped, the log file is complete
	if err := m.out.Close(); err != nil {
		errs = append(errs, err)
	}
	m.out = nil
	return errors.Join(errs...)
}
