package stage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roost-sandbox/roost/internal/model"
	"github.com/roost-sandbox/roost/internal/stage"

	"github.com/stretchr/testify/require"
)

func TestPrepareURL(t *testing.T) {
	t.Parallel()
	results := t.TempDir()
	cfg := model.Config{
		Category: model.CategoryURL,
		Target:   "http://malicious.example.com/",
		Results:  results,
		Work:     t.TempDir(),
	}

	paths, target, err := stage.Prepare(cfg)
	require.NoError(t, err)
	require.Equal(t, cfg.Target, target)
	require.Equal(t, results, paths.Root)
	for _, dir := range []string{paths.Logs, paths.Shots, paths.Files} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestPrepareFile(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	sample := filepath.Join(work, "sample.apk")
	require.NoError(t, os.WriteFile(sample, []byte("PK"), 0o644))

	cfg := model.Config{
		Category: model.CategoryFile,
		Target:   "/opt/submit/sample.apk",
		FileName: "sample.apk",
		Results:  t.TempDir(),
		Work:     work,
	}

	_, target, err := stage.Prepare(cfg)
	require.NoError(t, err)
	require.Equal(t, sample, target)
}

func TestPrepareFileMissingSample(t *testing.T) {
	t.Parallel()
	cfg := model.Config{
		Category: model.CategoryFile,
		FileName: "missing.apk",
		Results:  t.TempDir(),
		Work:     t.TempDir(),
	}

	_, _, err := stage.Prepare(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "staged sample not found")
}
