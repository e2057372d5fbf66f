// Package plugin defines the contracts analysis packages and auxiliary
// modules must satisfy to participate in a run, and the registry the
// supervisor resolves them from.
//
// Registration is static: every concrete package registers itself into
// Default from init() and the composition root blank-imports the package.
// Name collisions panic at init, two implementations claiming the same
// name is a programmer error which must not survive to a run.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roost-sandbox/roost/internal/model"
	"github.com/roost-sandbox/roost/internal/options"
	"github.com/roost-sandbox/roost/internal/stage"
)

var (
	// ErrDriverNotFound reports that no analysis package is registered
	// under the requested name.
	ErrDriverNotFound = errors.New("analysis package not found")
)

// Driver is the single analysis package driving the submitted artifact.
// Exactly one instance exists per run, owned by the supervisor.
type Driver interface {
	// Start launches the target. A fatal error here aborts the run.
	Start(ctx context.Context, target string) error
	// Check is called once per poll iteration. Returning false requests
	// the termination of the analysis; an error is never fatal.
	Check(ctx context.Context) (bool, error)
	// Finish runs final operations before shutdown. Never fatal.
	Finish(ctx context.Context) error
}

// Auxiliary is an independent best-effort capture module running
// alongside the driver. Failures never affect other modules.
type Auxiliary interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Environment is what a factory gets to construct its plugin.
type Environment struct {
	Config  model.Config
	Options options.Map
	Paths   stage.Paths
}

type DriverFactory func(env Environment) (Driver, error)

type AuxiliaryFactory func(env Environment) (Auxiliary, error)

// NamedAuxiliary pairs an auxiliary factory with its registered name,
// used for per-module log attribution.
type NamedAuxiliary struct {
	Name string
	New  AuxiliaryFactory
}

// Registry holds driver factories by name and the fixed, append-only
// set of auxiliary factories. The zero value is not usable, construct
// with NewRegistry.
type Registry struct {
	drivers map[string]DriverFactory
	aux     []NamedAuxiliary
}

func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]DriverFactory),
	}
}

// Default is the process-wide registry populated by package init().
var Default = NewRegistry()

func (r *Registry) RegisterDriver(name string, factory DriverFactory) error {
	if name == "" || factory == nil {
		return errors.New("driver registration needs a name and a factory")
	}
	if _, ok := r.drivers[name]; ok {
		return fmt.Errorf("analysis package %q registered twice", name)
	}
	r.drivers[name] = factory
	return nil
}

// MustRegisterDriver is RegisterDriver for init() use.
func (r *Registry) MustRegisterDriver(name string, factory DriverFactory) {
	if err := r.RegisterDriver(name, factory); err != nil {
		panic(err)
	}
}

// Driver resolves the factory registered under name.
func (r *Registry) Driver(name string) (DriverFactory, error) {
	factory, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("analysis package %q: %w", name, ErrDriverNotFound)
	}
	return factory, nil
}

// DriverNames returns all registered driver names, sorted.
func (r *Registry) DriverNames() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) RegisterAuxiliary(name string, factory AuxiliaryFactory) error {
	if name == "" || factory == nil {
		return errors.New("auxiliary registration needs a name and a factory")
	}
	for _, a := range r.aux {
		if a.Name == name {
			return fmt.Errorf("auxiliary module %q registered twice", name)
		}
	}
	r.aux = append(r.aux, NamedAuxiliary{Name: name, New: factory})
	return nil
}

// MustRegisterAuxiliary is RegisterAuxiliary for init() use.
func (r *Registry) MustRegisterAuxiliary(name string, factory AuxiliaryFactory) {
	if err := r.RegisterAuxiliary(name, factory); err != nil {
		panic(err)
	}
}

// Auxiliaries returns the registered auxiliary factories in registration
// order. The returned slice is a copy.
func (r *Registry) Auxiliaries() []NamedAuxiliary {
	return slices.Clone(r.aux)
}
