// Package evidence writes an inventory of everything the run collected:
// a CycloneDX BOM with one file component per collected artifact, so the
// host can verify the results tree it fetches is complete and untampered.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roost-sandbox/roost/internal/plugin"
)

func init() {
	plugin.Default.MustRegisterAuxiliary("evidence", New)
}

// inventoryFile is written into the results root on Stop.
const inventoryFile = "evidence.json"

// hashLimit bounds the concurrent file hashing on Stop.
const hashLimit = 4

var version string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		version = "unknown"
	} else {
		version = info.Main.Version
	}
}

// Module inventories the results tree. All the work happens in Stop,
// once every other module flushed its captures.
type Module struct {
	root    string
	started bool
}

func New(env plugin.Environment) (plugin.Auxiliary, error) {
	return &Module{root: env.Paths.Root}, nil
}

func (m *Module) Start(context.Context) error {
	m.started = true
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if !m.started {
		return nil
	}

	files, err := m.collect()
	if err != nil {
		return fmt.Errorf("collecting results tree: %w", err)
	}

	components, err := m.hashAll(ctx, files)
	if err != nil {
		return fmt.Errorf("hashing results tree: %w", err)
	}

	out, err := os.Create(filepath.Join(m.root, inventoryFile))
	if err != nil {
		return fmt.Errorf("creating inventory: %w", err)
	}
	encodeErr := cdx.NewBOMEncoder(out, cdx.BOMFileFormatJSON).Encode(bom(components))
	if cerr := out.Close(); encodeErr == nil {
		encodeErr = cerr
	}
	if encodeErr != nil {
		return fmt.Errorf("writing inventory: %w", encodeErr)
	}

	slog.InfoContext(ctx, "evidence inventory saved", "files", len(components))
	return nil
}

func (m *Module) collect() ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filepath.Base(path) == inventoryFile {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func (m *Module) hashAll(ctx context.Context, files []string) ([]cdx.Component, error) {
	components := make([]cdx.Component, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hashLimit)
	for idx, path := range files {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			compo, err := m.component(path)
			if err != nil {
				return err
			}
			components[idx] = compo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return components, nil
}

func (m *Module) component(path string) (cdx.Component, error) {
	f, err := os.Open(path)
	if err != nil {
		return cdx.Component{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return cdx.Component{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		rel = path
	}

	return cdx.Component{
		Type: cdx.ComponentTypeFile,
		Name: rel,
		Hashes: &[]cdx.Hash{
			{Algorithm: cdx.HashAlgoSHA256, Value: hex.EncodeToString(h.Sum(nil))},
		},
		Properties: &[]cdx.Property{
			{Name: "roost:evidence:size", Value: strconv.FormatInt(size, 10)},
		},
	}, nil
}

func bom(components []cdx.Component) *cdx.BOM {
	// cyclonedx JSON schema does not allow null items
	if components == nil {
		components = []cdx.Component{}
	}
	return &cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    "CycloneDX",
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Component: &cdx.Component{
				Type:    cdx.ComponentTypeApplication,
				Name:    "roost-analyzer",
				Version: version,
			},
		},
		Components: &components,
	}
}
