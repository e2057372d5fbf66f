package plugin

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by plugins for callbacks they do not
// support. Non fatal everywhere except driver Start, where the analysis
// cannot proceed without a working launcher.
var ErrNotImplemented = errors.New("not implemented")

// IsNotImplemented reports whether err marks a missing capability.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// PackageError is an operational error deliberately raised by an
// analysis package, as opposed to an unexpected fault.
type PackageError struct {
	Reason string
}

func (e *PackageError) Error() string {
	return e.Reason
}

// Operational builds a PackageError.
func Operational(format string, args ...any) error {
	return &PackageError{Reason: fmt.Sprintf(format, args...)}
}

// IsOperational reports whether err was deliberately raised by a package.
func IsOperational(err error) bool {
	var pe *PackageError
	return errors.As(err, &pe)
}

// PanicError is a fault recovered from a plugin callback. It keeps the
// plugin identity and the callback name so logs can attribute it.
type PanicError struct {
	Plugin string
	Op     string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin %s: %s panicked: %v", e.Plugin, e.Op, e.Value)
}

// Call invokes a single plugin callback with fault containment: a panic
// inside fn comes back as a *PanicError instead of tearing the run down.
// The caller decides whether the returned error is fatal.
func Call(_ context.Context, plugin, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Plugin: plugin, Op: op, Value: r}
		}
	}()
	return fn()
}

// CallCheck is Call for the driver Check callback, which also yields the
// keep-running decision. On a contained fault the decision is true, a
// misbehaving Check never terminates the analysis early.
func CallCheck(_ context.Context, plugin string, fn func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = true
			err = &PanicError{Plugin: plugin, Op: "check", Value: r}
		}
	}()
	return fn()
}
