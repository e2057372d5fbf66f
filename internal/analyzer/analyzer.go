// Package analyzer runs the bounded analysis loop inside the guest: it
// resolves the analysis package, runs auxiliary modules alongside it,
// polls the package until its deadline or self-termination and produces
// the single outcome record of the run.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roost-sandbox/roost/internal/log"
	"github.com/roost-sandbox/roost/internal/model"
	"github.com/roost-sandbox/roost/internal/options"
	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/stage"
)

// Analyzer supervises exactly one run. It owns the driver instance for
// the run's lifetime and is the only thread of control in the core, so
// plugin callbacks are never invoked in parallel.
type Analyzer struct {
	cfg      model.Config
	registry *plugin.Registry
	quantum  time.Duration
}

type startedAux struct {
	name string
	aux  plugin.Auxiliary
}

func New(cfg model.Config, registry *plugin.Registry) (*Analyzer, error) {
	if registry == nil {
		registry = plugin.Default
	}
	// configs loaded through model.LoadConfig are already schema checked,
	// guard the invariants for programmatic construction too
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %d", cfg.Timeout)
	}
	if cfg.Category != model.CategoryFile && cfg.Category != model.CategoryURL {
		return nil, fmt.Errorf("unknown category %q", cfg.Category)
	}
	return &Analyzer{
		cfg:      cfg,
		registry: registry,
		quantum:  time.Second,
	}, nil
}

// WithQuantum changes the pause between poll iterations. This method
// exists for unit testing only.
func (a *Analyzer) WithQuantum(d time.Duration) *Analyzer {
	a.quantum = d
	return a
}

// Run executes the analysis and returns its outcome. It always returns:
// any fault escaping the contained plugin callbacks, including a panic
// in the orchestration itself, becomes a failed outcome.
func (a *Analyzer) Run(ctx context.Context) (outcome model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "analysis aborted by unexpected fault", "fault", r)
			outcome = model.Failure(fmt.Errorf("unexpected fault: %v", r), a.cfg.Results)
		}
	}()

	if err := a.run(ctx); err != nil {
		slog.ErrorContext(ctx, "analysis failed", "error", err)
		return model.Failure(err, a.cfg.Results)
	}

	slog.InfoContext(ctx, "analysis completed")
	return model.Outcome{Success: true, ResultsPath: a.cfg.Results}
}

func (a *Analyzer) run(ctx context.Context) error {
	paths, target, err := stage.Prepare(a.cfg)
	if err != nil {
		return fmt.Errorf("preparing the analysis: %w", err)
	}
	slog.InfoContext(ctx, "starting analysis",
		"target", target, "results", paths.Root, "timeout", a.cfg.Timeout)

	name, err := a.selectPackage(ctx)
	if err != nil {
		return err
	}
	ctx = log.ContextAttrs(ctx, slog.String("package", name))

	factory, err := a.registry.Driver(name)
	if err != nil {
		return err
	}

	env := plugin.Environment{
		Config:  a.cfg,
		Options: options.Parse(ctx, a.cfg.Options),
		Paths:   paths,
	}

	driver, err := factory(env)
	if err != nil {
		return fmt.Errorf("initializing analysis package %q: %w", name, err)
	}

	// auxiliary modules are best effort: a failing one is skipped and
	// the successfully started set is kept for symmetric shutdown
	started := a.startAuxiliaries(ctx, env)

	if err := a.startDriver(ctx, name, driver, target); err != nil {
		// the driver never ran, finish() and auxiliary shutdown are
		// skipped on this path
		return err
	}

	a.poll(ctx, name, driver)
	a.shutdown(ctx, name, driver, started)
	return nil
}

func (a *Analyzer) selectPackage(ctx context.Context) (string, error) {
	if a.cfg.Package != "" {
		return a.cfg.Package, nil
	}

	slog.InfoContext(ctx, "no analysis package specified, detecting one from the file type")
	if a.cfg.Category == model.CategoryURL {
		return plugin.BrowserPackage, nil
	}
	name, err := plugin.Choose(a.cfg.FileType, a.cfg.FileName)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "automatically selected analysis package", "package", name)
	return name, nil
}

func (a *Analyzer) startAuxiliaries(ctx context.Context, env plugin.Environment) []startedAux {
	var started []startedAux
	for _, named := range a.registry.Auxiliaries() {
		aux, err := named.New(env)
		if err != nil {
			slog.WarnContext(ctx, "cannot initialize auxiliary module, skipping",
				"module", named.Name, "error", err)
			continue
		}

		err = plugin.Call(ctx, named.Name, "start", func() error {
			return aux.Start(ctx)
		})
		switch {
		case plugin.IsNotImplemented(err):
			slog.WarnContext(ctx, "auxiliary module is not implemented", "module", named.Name)
		case err != nil:
			slog.WarnContext(ctx, "cannot execute auxiliary module",
				"module", named.Name, "error", err)
		default:
			slog.InfoContext(ctx, "started auxiliary module", "module", named.Name)
			started = append(started, startedAux{name: named.Name, aux: aux})
		}
	}
	return started
}

// startDriver launches the target through the analysis package. All three
// failure kinds are fatal and keep distinct messages so the host can tell
// a missing capability from an operational error and from a stray fault.
func (a *Analyzer) startDriver(ctx context.Context, name string, driver plugin.Driver, target string) error {
	err := plugin.Call(ctx, name, "start", func() error {
		return driver.Start(ctx, target)
	})
	switch {
	case err == nil:
		return nil
	case plugin.IsNotImplemented(err):
		return fmt.Errorf("the package %q does not implement the start function", name)
	case plugin.IsOperational(err):
		return fmt.Errorf("the package %q start function raised an error: %w", name, err)
	default:
		return fmt.Errorf("the package %q start function encountered an unhandled fault: %w", name, err)
	}
}

// poll drives the package until it requests termination or the deadline
// is reached: one guarded check per iteration, timeout iterations at
// most, one quantum of sleep in between. A check fault never ends the
// loop, the iteration proceeds as if the package asked to keep going.
func (a *Analyzer) poll(ctx context.Context, name string, driver plugin.Driver) {
	for tick := 1; ; tick++ {
		keepRunning, err := plugin.CallCheck(ctx, name, func() (bool, error) {
			return driver.Check(ctx)
		})
		if err != nil {
			slog.WarnContext(ctx, "the package check function raised an error, continuing",
				"error", err, "tick", tick)
			// a faulted iteration counts as "keep going", whatever the
			// package returned next to the error
			keepRunning = true
		}
		if !keepRunning {
			slog.InfoContext(ctx, "the analysis package requested the termination of the analysis")
			return
		}
		if tick >= a.cfg.Timeout {
			slog.InfoContext(ctx, "analysis timeout hit, terminating analysis")
			return
		}
		time.Sleep(a.quantum)
	}
}

// shutdown finalizes the package first, then stops every auxiliary that
// actually started. Each step is contained and never short-circuits the
// remaining ones.
func (a *Analyzer) shutdown(ctx context.Context, name string, driver plugin.Driver, started []startedAux) {
	err := plugin.Call(ctx, name, "finish", func() error {
		return driver.Finish(ctx)
	})
	if err != nil && !plugin.IsNotImplemented(err) {
		slog.WarnContext(ctx, "the package finish function raised an error", "error", err)
	}

	for _, s := range started {
		err := plugin.Call(ctx, s.name, "stop", func() error {
			return s.aux.Stop(ctx)
		})
		switch {
		case plugin.IsNotImplemented(err):
			continue
		case err != nil:
			slog.WarnContext(ctx, "cannot terminate auxiliary module",
				"module", s.name, "error", err)
		}
	}
}
