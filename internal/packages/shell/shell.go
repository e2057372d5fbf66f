// Package shell is the analysis package for native executables: the
// sample runs as a direct child process tracked by a runner.
package shell

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/process"
)

func init() {
	plugin.Default.MustRegisterDriver("shell", New)
}

// Package runs the sample binary. The args option carries extra
// space-separated arguments for it.
type Package struct {
	runner *process.Runner
	args   []string
}

func New(env plugin.Environment) (plugin.Driver, error) {
	var args []string
	if raw := env.Options.Get("args", ""); raw != "" {
		args = strings.Fields(raw)
	}
	return &Package{
		runner: process.NewRunner(),
		args:   args,
	}, nil
}

func (p *Package) Start(ctx context.Context, target string) error {
	// staged samples arrive without the execute bit
	if err := os.Chmod(target, 0o755); err != nil {
		return plugin.Operational("marking %s executable failed: %v", target, err)
	}

	err := p.runner.Start(ctx, process.Command{
		Path: target,
		Args: p.args,
	}, func(ctx context.Context, line string) {
		slog.DebugContext(ctx, "sample stderr", "line", line)
	})
	if err != nil {
		return plugin.Operational("executing %s failed: %v", target, err)
	}
	slog.InfoContext(ctx, "sample executing", "target", target, "args", p.args)
	return nil
}

// Check keeps the analysis running while the sample process is alive.
func (p *Package) Check(context.Context) (bool, error) {
	return p.runner.Alive(), nil
}

func (p *Package) Finish(context.Context) error {
	err := p.runner.Kill()
	if err != nil && !errors.Is(err, process.ErrNotStarted) {
		return err
	}
	return nil
}
