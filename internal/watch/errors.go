package watch

import (
	"errors"
	"fmt"
)

// Error categories returned by Store. Match them with errors.Is.
var (
	// ErrValidation marks malformed input to CreateRule.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown rule ID or an unresolved watch target.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks a transition or detection against a rule that
	// is no longer active.
	ErrInvalidState = errors.New("invalid state")
)

// TargetNotFoundError reports a target that does not resolve in the catalog.
// It matches both ErrNotFound and ErrValidation.
type TargetNotFoundError struct {
	Target Target
	Err    error
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("watch target %s %q not found in catalog", e.Target.Type, e.Target.ID)
}

func (e *TargetNotFoundError) Unwrap() error {
	return e.Err
}

func (e *TargetNotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrValidation
}
