// Package browser is the analysis package for submitted urls: it opens
// the url in the guest browser and keeps it in the foreground until the
// deadline.
package browser

import (
	"context"
	"log/slog"

	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/process"
)

func init() {
	plugin.Default.MustRegisterDriver(plugin.BrowserPackage, New)
}

const defaultBrowser = "com.android.browser"

// Package drives the guest browser. The browser_pkg option overrides
// which browser application handles the url.
type Package struct {
	browserPkg string
	started    bool
}

func New(env plugin.Environment) (plugin.Driver, error) {
	return &Package{
		browserPkg: env.Options.Get("browser_pkg", defaultBrowser),
	}, nil
}

func (p *Package) Start(ctx context.Context, target string) error {
	_, err := process.Output(ctx, "am", "start",
		"-a", "android.intent.action.VIEW",
		"-d", target)
	if err != nil {
		return plugin.Operational("opening url failed: %v", err)
	}
	p.started = true
	slog.InfoContext(ctx, "url opened", "browser", p.browserPkg)
	return nil
}

// Check always keeps running: the browser has no self-termination
// condition, the analysis ends on the deadline.
func (p *Package) Check(context.Context) (bool, error) {
	return true, nil
}

func (p *Package) Finish(ctx context.Context) error {
	if !p.started {
		return nil
	}
	_, err := process.Output(ctx, "am", "force-stop", p.browserPkg)
	return err
}
