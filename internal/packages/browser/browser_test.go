package browser_test

import (
	"testing"

	"github.com/roost-sandbox/roost/internal/options"
	"github.com/roost-sandbox/roost/internal/packages/browser"
	"github.com/roost-sandbox/roost/internal/plugin"

	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	t.Parallel()
	_, err := plugin.Default.Driver(plugin.BrowserPackage)
	require.NoError(t, err)
}

func TestCheckAlwaysKeepsRunning(t *testing.T) {
	t.Parallel()
	driver, err := browser.New(plugin.Environment{Options: options.Map{}})
	require.NoError(t, err)

	for range 3 {
		keepRunning, err := driver.Check(t.Context())
		require.NoError(t, err)
		require.True(t, keepRunning)
	}
}

func TestFinishBeforeStartIsNoop(t *testing.T) {
	t.Parallel()
	driver, err := browser.New(plugin.Environment{
		Options: options.Map{"browser_pkg": "org.mozilla.firefox"},
	})
	require.NoError(t, err)
	require.NoError(t, driver.Finish(t.Context()))
}
