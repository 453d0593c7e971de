package rhi

import (
	"errors"
	"fmt"
)

// Errors returned by shader object, specialization and cache operations.
// Callers match them with errors.Is; returned errors wrap them with context.
var (
	// ErrInvalidArgument reports an out-of-range offset, index or a nil input.
	ErrInvalidArgument = errors.New("rhi: invalid argument")

	// ErrInvalidState reports a mutation of a finalized shader object, or
	// attaching a non-finalized sub-object after initialization.
	ErrInvalidState = errors.New("rhi: invalid state")

	// ErrUnsupported reports a binding this layer cannot express, such as an
	// existential value that does not fit its inline payload.
	ErrUnsupported = errors.New("rhi: not supported for this layout")

	// ErrCompileFailure reports that the backend rejected a specialized program.
	ErrCompileFailure = errors.New("rhi: compile failure")

	// ErrDeviceReleased reports use of a device after its teardown.
	ErrDeviceReleased = errors.New("rhi: device released")
)

// CompileError describes a rejected specialization. Diagnostics holds the
// backend's diagnostic blob, if any.
type CompileError struct {
	Pipeline    string
	Args        []string
	Diagnostics []byte
	Err         error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("rhi: compile %q with %v failed", e.Pipeline, e.Args)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrCompileFailure as a match so callers need not know the type.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompileFailure
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}
