package shared

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is returned when a submission has no usable upload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownJob is returned when the store has no record of a job ID.
	ErrUnknownJob = errors.New("unknown job")
	// ErrInvalidTransition is returned when an update would leave a terminal state
	// or otherwise break the job state machine.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrQueueFull is returned by bounded queues that cannot accept more work.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when publishing to a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// ProcessingError wraps an adapter failure for a single job.
type ProcessingError struct {
	JobID string
	Kind  JobKind
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s job %s: %v", e.Kind, e.JobID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
