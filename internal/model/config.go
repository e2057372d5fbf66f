// Package model holds the analysis configuration resolved by the host
// agent and the outcome record sent back once the run ends.
package model

import (
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Artifact categories.
const (
	CategoryFile = "file"
	CategoryURL  = "url"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	// the definition contains a comprehension over the category field and
	// only evaluates fully once unified with a concrete document, so the
	// bare value is not checked beyond existence: validation happens in
	// LoadConfig on the unified value
	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if !schema.Exists() {
		panic("definition #Config not found in the embedded schema")
	}
}

// Config is the analysis configuration for a single run. It is produced
// by the host at submission time, read once at startup and never mutated.
type Config struct {
	Version  int    `json:"version"`
	Category string `json:"category"`            // "file" | "url"
	Target   string `json:"target"`              // original path or URL
	FileName string `json:"file_name,omitempty"` // required for category "file"
	FileType string `json:"file_type,omitempty"` // magic string, used for package selection
	Package  string `json:"package,omitempty"`   // explicit analysis package, empty => select by file type
	Options  string `json:"options,omitempty"`   // raw key=value,key=value string
	Timeout  int    `json:"timeout"`             // seconds, always > 0
	Verbose  bool   `json:"verbose"`

	Work    string `json:"work"`    // staging directory for the sample
	Results string `json:"results"` // root of the results tree

	Agent      Agent       `json:"agent"`
	VirusTotal *VirusTotal `json:"virustotal,omitempty"`
}

// Agent points at the host agent controlling this guest.
type Agent struct {
	URL string `json:"url"`
}

// VirusTotal configures the post-analysis reputation lookup.
type VirusTotal struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key,omitempty"`
	Timeout int    `json:"timeout"` // seconds
	Scan    bool   `json:"scan"`    // submit unknown resources for scanning
}

// LoadConfig validates YAML from r against the embedded CUE schema and
// decodes it into a Config. Defaults from the schema are applied.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("analysis.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}

// LoadConfigFile is LoadConfig reading from path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening analysis config: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadConfig(f)
}
