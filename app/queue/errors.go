package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrInvalidPayload   = errors.New("invalid email payload")
	ErrInvalidOptions   = errors.New("invalid job options")
	ErrJobNotFound      = errors.New("job not found")
	ErrLockLost         = errors.New("job lock lost")
)

// TransportError marks a failed delivery attempt. Returning it from a
// Processor hands the job back to the store for retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PermanentFailureError is reported once a job has used all of its attempts.
type PermanentFailureError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *PermanentFailureError) Error() string {
	return fmt.Sprintf("job %s failed permanently after %d attempts: %v", e.JobID, e.Attempts, e.Err)
}

func (e *PermanentFailureError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrQueueUnavailable, op, err)
}
