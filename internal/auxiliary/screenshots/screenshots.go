// Package screenshots periodically captures the guest screen into the
// results tree while the analysis runs.
package screenshots

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/process"
)

func init() {
	plugin.Default.MustRegisterAuxiliary("screenshots", New)
}

const defaultInterval = 5 * time.Second

// Module runs a single background goroutine taking one screencap per
// interval. The screenshots_interval option (seconds) tunes the rate.
type Module struct {
	shotsDir string
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func New(env plugin.Environment) (plugin.Auxiliary, error) {
	interval := defaultInterval
	if raw := env.Options.Get("screenshots_interval", ""); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid screenshots_interval %q", raw)
		}
		interval = time.Duration(secs) * time.Second
	}
	return &Module{
		shotsDir: env.Paths.Shots,
		interval: interval,
	}, nil
}

func (m *Module) Start(ctx context.Context) error {
	binary, err := exec.LookPath("screencap")
	if err != nil {
		return fmt.Errorf("screencap binary: %w", plugin.ErrNotImplemented)
	}

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.capture(context.WithoutCancel(ctx), binary)
	return nil
}

func (m *Module) capture(ctx context.Context, binary string) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for counter := 1; ; counter++ {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		path := filepath.Join(m.shotsDir, fmt.Sprintf("%04d.png", counter))
		if _, err := process.Output(ctx, binary, "-p", path); err != nil {
			slog.DebugContext(ctx, "screen capture failed", "error", err, "path", path)
		}
	}
}

func (m *Module) Stop(context.Context) error {
	if m.stop == nil {
		return nil
	}
	close(m.stop)
	<-m.done
	m.stop = nil
	return nil
}
