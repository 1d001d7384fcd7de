package mcpi

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument reports a precondition violation detected before any
	// work is dispatched.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrExecution reports that at least one job could not be completed. The
	// whole estimation fails; partial results are never used.
	ErrExecution = errors.New("execution failure")
	// ErrResourceExhausted reports that the strategy could not obtain workers.
	// It matches ErrExecution under errors.Is.
	ErrResourceExhausted = errors.Wrap(ErrExecution, "resource exhausted")
)

// JobError is the failure of a single job. It matches ErrExecution, and
// ErrResourceExhausted when Exhausted is set.
type JobError struct {
	JobID     int
	Exhausted bool
	Err       error
}

func (e *JobError) Error() string {
	kind := ErrExecution
	if e.Exhausted {
		kind = ErrResourceExhausted
	}
	return fmt.Sprintf("%v: job %d: %v", kind, e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

func (e *JobError) Is(target error) bool {
	switch target {
	case ErrExecution:
		return true
	case ErrResourceExhausted:
		return e.Exhausted
	}
	return false
}

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
