package plugin_test

import (
	"context"
	"testing"

	"github.com/roost-sandbox/roost/internal/plugin"

	"github.com/stretchr/testify/require"
)

type nopDriver struct{}

func (nopDriver) Start(context.Context, string) error { return nil }
func (nopDriver) Check(context.Context) (bool, error) { return true, nil }
func (nopDriver) Finish(context.Context) error        { return nil }

type nopAux struct{}

func (nopAux) Start(context.Context) error { return nil }
func (nopAux) Stop(context.Context) error  { return nil }

func driverFactory(plugin.Environment) (plugin.Driver, error) {
	return nopDriver{}, nil
}

func auxFactory(plugin.Environment) (plugin.Auxiliary, error) {
	return nopAux{}, nil
}

func TestRegistryDrivers(t *testing.T) {
	t.Parallel()
	r := plugin.NewRegistry()

	require.NoError(t, r.RegisterDriver("apk", driverFactory))
	require.NoError(t, r.RegisterDriver("shell", driverFactory))

	factory, err := r.Driver("apk")
	require.NoError(t, err)
	require.NotNil(t, factory)

	_, err = r.Driver("does_not_exist")
	require.ErrorIs(t, err, plugin.ErrDriverNotFound)
	require.ErrorContains(t, err, "does_not_exist")

	require.Equal(t, []string{"apk", "shell"}, r.DriverNames())
}

func TestRegistryDriverCollision(t *testing.T) {
	t.Parallel()
	r := plugin.NewRegistry()
	require.NoError(t, r.RegisterDriver("apk", driverFactory))
	require.Error(t, r.RegisterDriver("apk", driverFactory))
	require.Panics(t, func() {
		r.MustRegisterDriver("apk", driverFactory)
	})
}

func TestRegistryRejectsIncomplete(t *testing.T) {
	t.Parallel()
	r := plugin.NewRegistry()
	require.Error(t, r.RegisterDriver("", driverFactory))
	require.Error(t, r.RegisterDriver("apk", nil))
	require.Error(t, r.RegisterAuxiliary("", auxFactory))
	require.Error(t, r.RegisterAuxiliary("logcat", nil))
}

func TestRegistryAuxiliaries(t *testing.T) {
	t.Parallel()
	r := plugin.NewRegistry()
	require.NoError(t, r.RegisterAuxiliary("logcat", auxFactory))
	require.NoError(t, r.RegisterAuxiliary("screenshots", auxFactory))
	require.Error(t, r.RegisterAuxiliary("logcat", auxFactory))

	aux := r.Auxiliaries()
	require.Len(t, aux, 2)
	// registration order is preserved
	require.Equal(t, "logcat", aux[0].Name)
	require.Equal(t, "screenshots", aux[1].Name)
}

func TestChoose(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		fileType string
		fileName string
		expected string
	}{
		{"Android application package file", "sample.bin", "apk"},
		{"Zip archive data", "sample.apk", "apk"},
		{"data", "sample.apk", "apk"},
		{"ELF 64-bit LSB executable", "dropper", "shell"},
		{"HTML document text", "index.html", "browser"},
		{"data", "landing.htm", "browser"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected+"/"+tc.fileType, func(t *testing.T) {
			t.Parallel()
			got, err := plugin.Choose(tc.fileType, tc.fileName)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}

	t.Run("unknown type fails", func(t *testing.T) {
		t.Parallel()
		_, err := plugin.Choose("PDF document", "sample.pdf")
		require.ErrorIs(t, err, plugin.ErrNoPackage)
	})
}
