package evidence_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	cdx "github.com/CycloneDX/cyclonedx-go"

	"github.com/roost-sandbox/roost/internal/auxiliary/evidence"
	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/stage"

	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	t.Parallel()
	for _, named := range plugin.Default.Auxiliaries() {
		if named.Name == "evidence" {
			return
		}
	}
	t.Fatal("evidence module not registered")
}

func TestInventory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	logs := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "logcat.log"), []byte("log line\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dropped.bin"), []byte{0xde, 0xad}, 0o644))

	aux, err := evidence.New(plugin.Environment{Paths: stage.Paths{Root: root}})
	require.NoError(t, err)
	require.NoError(t, aux.Start(t.Context()))
	require.NoError(t, aux.Stop(t.Context()))

	raw, err := os.ReadFile(filepath.Join(root, "evidence.json"))
	require.NoError(t, err)

	var bom cdx.BOM
	require.NoError(t, json.Unmarshal(raw, &bom))
	require.Equal(t, "CycloneDX", bom.BOMFormat)
	require.Contains(t, bom.SerialNumber, "urn:uuid:")
	require.NotNil(t, bom.Components)
	require.Len(t, *bom.Components, 2)

	// components are sorted by path and carry the file hash
	compos := *bom.Components
	require.Equal(t, "dropped.bin", compos[0].Name)
	require.Equal(t, filepath.Join("logs", "logcat.log"), compos[1].Name)

	sum := sha256.Sum256([]byte{0xde, 0xad})
	require.NotNil(t, compos[0].Hashes)
	require.Equal(t, hex.EncodeToString(sum[:]), (*compos[0].Hashes)[0].Value)
}

func TestInventoryEmptyTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	aux, err := evidence.New(plugin.Environment{Paths: stage.Paths{Root: root}})
	require.NoError(t, err)
	require.NoError(t, aux.Start(t.Context()))
	require.NoError(t, aux.Stop(t.Context()))

	raw, err := os.ReadFile(filepath.Join(root, "evidence.json"))
	require.NoError(t, err)

	var bom cdx.BOM
	require.NoError(t, json.Unmarshal(raw, &bom))
	require.NotNil(t, bom.Components)
	require.Empty(t, *bom.Components)
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	aux, err := evidence.New(plugin.Environment{Paths: stage.Paths{Root: root}})
	require.NoError(t, err)
	require.NoError(t, aux.Stop(t.Context()))
	require.NoFileExists(t, filepath.Join(root, "evidence.json"))
}
