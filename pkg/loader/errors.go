package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrUnitNotFound is matched by every NotFoundError
	ErrUnitNotFound = errors.New("unit not found")
	// ErrPreviouslyFailed is the cause reported for poisoned names
	ErrPreviouslyFailed = errors.New("unit failed to load earlier")
	// ErrNoParent is the cause reported for excluded names when the loader
	// has no parent to delegate to
	ErrNoParent = errors.New("excluded unit and no parent loader")
	// ErrEmptyContent is returned by definers for empty units
	ErrEmptyContent = errors.New("unit content is empty")
)

// NotFoundError reports a unit that could not be loaded
type NotFoundError struct {
	Name  string
	Cause error
}

func (e *NotFoundError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("unit %s not found", e.Name)
	}
	return fmt.Sprintf("unit %s not found: %v", e.Name, e.Cause)
}

func (e *NotFoundError) Unwrap() error { return e.Cause }

// Is matches ErrUnitNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrUnitNotFound
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnitNotFound)
}
