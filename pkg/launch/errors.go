package launch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoComponents is returned when no component could be processed
	ErrNoComponents = errors.New("no components to launch")
	// ErrNoTarget is returned when the primary component names no launch
	// target
	ErrNoTarget = errors.New("primary component has no launch target")
	// ErrNoEntrypoint is returned when the launch target has no entry point
	ErrNoEntrypoint = errors.New("no entry point registered for launch target")
	// ErrNoFactory is returned when a component name has no factory and no
	// default factory is set
	ErrNoFactory = errors.New("no factory registered for component")
)

// FatalError is any failure that aborts the bootstrap
type FatalError struct {
	// Stage is the handler that failed
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("unable to launch: %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborted a bootstrap
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
