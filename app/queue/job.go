package queue

import (
	"context"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Job is a persisted email send request.
type Job struct {
	ID           string
	Payload      EmailPayload
	Options      JobOptions
	AttemptsMade int
	State        State
	FailedReason string
	StalledCount int
	CreatedAt    time.Time
	ProcessedAt  time.Time
	FinishedAt   time.Time
	DelayedUntil time.Time
	Result       *Result
}

// Result is what a processor returns for a delivered email.
type Result struct {
	Success bool   `json:"success"`
	To      string `json:"to"`
	Subject string `json:"subject"`
}

// JobHandle is returned by Enqueue once the job is persisted.
type JobHandle struct {
	ID string `json:"id"`
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    bool  `json:"paused"`
}

// Processor performs the side effect for a job. A non-nil error means the
// attempt failed and the store decides whether to retry.
type Processor interface {
	Process(ctx context.Context, job *Job) (*Result, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *Job) (*Result, error)

func (f ProcessorFunc) Process(ctx context.Context, job *Job) (*Result, error) {
	return f(ctx, job)
}
