package sandbox

import (
	"errors"
	"fmt"

	"github.com/shellbox/shellbox/pkg/types"
)

var (
	// ErrNotFound is returned for lookups of unknown sandbox ids.
	ErrNotFound = errors.New("sandbox not found")

	// ErrAdmissionExhausted is returned when no capacity is available
	// within the caller's wait budget. Retryable.
	ErrAdmissionExhausted = errors.New("sandbox capacity exhausted")

	// ErrSessionTimeout is returned when a session command's sentinel is
	// not observed within the command timeout. The session is presumed
	// corrupted and the sandbox is demoted to failed.
	ErrSessionTimeout = errors.New("session timed out waiting for command completion")

	// ErrSessionClosed is returned when the session's underlying stream
	// closed unexpectedly.
	ErrSessionClosed = errors.New("session stream closed")
)

// InvalidTransitionError reports a state-machine violation: the sandbox was
// not in the state the operation required.
type InvalidTransitionError struct {
	SandboxID string
	Actual    types.SandboxState
	Expected  types.SandboxState
	Target    types.SandboxState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("sandbox %s: invalid transition to %s: state is %s, expected %s",
		e.SandboxID, e.Target, e.Actual, e.Expected)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// RuntimeError wraps a container-runtime failure with the sandbox and
// operation it occurred in. Transient failures are retried once by the
// runtime adapter before a RuntimeError surfaces.
type RuntimeError struct {
	SandboxID string
	Op        string
	Err       error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s failed for sandbox %s: %v", e.Op, e.SandboxID, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
