package executor

import (
	"fmt"

	"github.com/google/uuid"

	"serial-commander/internal/response"
)

// StatusError is an attempt failure for a reply that decoded but reported a
// status other than OK.
type StatusError struct {
	Result response.Result
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device reported status %s for %s", e.Result.StatusToken(), e.Result.Kind())
}

// ExecutionErrorKind is the terminal state of a failed execution
type ExecutionErrorKind int

const (
	// Exhausted means every allowed attempt failed
	Exhausted ExecutionErrorKind = iota + 1
	// Aborted means the session was closed while the command was running
	Aborted
)

func (k ExecutionErrorKind) String() string {
	switch k {
	case Exhausted:
		return "Exhausted"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("ExecutionErrorKind(%d)", int(k))
	}
}

// ExecutionError is returned when a command did not succeed. Last is the
// failure of the final attempt.
type ExecutionError struct {
	Kind      ExecutionErrorKind
	CommandID uuid.UUID
	Command   string
	Attempts  int
	Last      error
}

func (e *ExecutionError) Error() string {
	if e.Kind == Aborted {
		return fmt.Sprintf("command %q aborted on attempt %d: %v", e.Command, e.Attempts, e.Last)
	}
	return fmt.Sprintf("command %q failed after %d attempts: %v", e.Command, e.Attempts, e.Last)
}

func (e *ExecutionError) Unwrap() error { return e.Last }
