// Package stage prepares the guest working area for a run: the results
// tree collected by auxiliary modules and the staged target artifact.
package stage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roost-sandbox/roost/internal/model"
)

// hooksFile is the instrumentation configuration shipped next to the
// analyzer binary and staged into the working area for the hooked process.
const hooksFile = "config/hooks.json"

// Paths is the per-run results tree. All directories exist after Prepare.
type Paths struct {
	Root  string // results root, reported back to the host
	Logs  string // capture logs (logcat and friends)
	Shots string // screenshots
	Files string // dropped or staged files
}

// Prepare creates the results tree under cfg.Results and stages the
// target. For the file category the sample is expected in cfg.Work under
// its submission name and hooks.json is copied next to it; the returned
// target is the staged path. For urls the target is the URL itself.
func Prepare(cfg model.Config) (Paths, string, error) {
	paths := Paths{
		Root:  cfg.Results,
		Logs:  filepath.Join(cfg.Results, "logs"),
		Shots: filepath.Join(cfg.Results, "shots"),
		Files: filepath.Join(cfg.Results, "files"),
	}
	for _, dir := range []string{paths.Root, paths.Logs, paths.Shots, paths.Files} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, "", fmt.Errorf("creating results directory %s: %w", dir, err)
		}
	}

	if cfg.Category != model.CategoryFile {
		return paths, cfg.Target, nil
	}

	target := filepath.Join(cfg.Work, cfg.FileName)
	if _, err := os.Stat(target); err != nil {
		return Paths{}, "", fmt.Errorf("staged sample not found: %w", err)
	}

	// hooks.json is optional: bare packages run without instrumentation
	if err := copyFile(hooksFile, filepath.Join(cfg.Work, filepath.Base(hooksFile))); err != nil {
		if !os.IsNotExist(err) {
			return Paths{}, "", fmt.Errorf("staging %s: %w", hooksFile, err)
		}
		slog.Warn("no hooks configuration found, running without instrumentation", "file", hooksFile)
	}

	return paths, target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
