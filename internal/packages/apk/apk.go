// Package apk is the analysis package for Android application packages:
// it installs the sample, launches its entry activity and watches the
// application process.
package apk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/process"
)

func init() {
	plugin.Default.MustRegisterDriver("apk", New)
}

// Package drives one installed apk. The entry point comes from the
// apk_entry option in the "package:activity" form; install=no skips the
// pm install step for pre-installed samples.
type Package struct {
	entry    string // raw apk_entry option
	pkgName  string
	activity string
	install  bool
	started  bool
}

func New(env plugin.Environment) (plugin.Driver, error) {
	p := &Package{
		entry:   env.Options.Get("apk_entry", ""),
		install: env.Options.Get("install", "yes") != "no",
	}
	p.pkgName, p.activity, _ = strings.Cut(p.entry, ":")
	return p, nil
}

func (p *Package) Start(ctx context.Context, target string) error {
	if p.pkgName == "" {
		return plugin.Operational("option apk_entry not provided, cannot launch the sample")
	}

	if p.install {
		out, err := process.Output(ctx, "pm", "install", "-r", target)
		if err != nil {
			return plugin.Operational("installing %s failed: %v", target, err)
		}
		slog.DebugContext(ctx, "sample installed", "output", out)
	}

	var err error
	if p.activity != "" {
		_, err = process.Output(ctx, "am", "start",
			"-n", p.pkgName+"/"+p.activity)
	} else {
		// no activity given, let monkey find the launcher entry
		_, err = process.Output(ctx, "monkey",
			"-p", p.pkgName, "-c", "android.intent.category.LAUNCHER", "1")
	}
	if err != nil {
		return plugin.Operational("launching %s failed: %v", p.pkgName, err)
	}

	p.started = true
	slog.InfoContext(ctx, "sample launched", "package", p.pkgName, "activity", p.activity)
	return nil
}

// Check keeps the analysis running while the application process exists.
func (p *Package) Check(ctx context.Context) (bool, error) {
	if !p.started {
		return false, fmt.Errorf("apk package: %w", process.ErrNotStarted)
	}
	out, err := process.Output(ctx, "pidof", p.pkgName)
	if err != nil {
		// pidof exits non-zero when no process matches
		return false, nil
	}
	return out != "", nil
}

func (p *Package) Finish(ctx context.Context) error {
	if !p.started {
		return nil
	}
	_, err := process.Output(ctx, "am", "force-stop", p.pkgName)
	return err
}
