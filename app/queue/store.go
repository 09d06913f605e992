package queue

import (
	"context"
	"time"
)

// Store is the durable job store. Every state transition it performs is
// atomic per job.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	// Add persists a new job and assigns its ID.
	Add(ctx context.Context, job *Job) error
	// Claim moves the oldest waiting job to active and locks it with token.
	// It returns nil when nothing is waiting or the queue is paused.
	Claim(ctx context.Context, token string, lockTTL time.Duration) (*Job, error)
	ExtendLock(ctx context.Context, jobID string, token string, lockTTL time.Duration) error
	Complete(ctx context.Context, job *Job, token string, result *Result) error
	// Fail records a failed attempt and returns the attempts made so far.
	// When retryDelay is negative the job moves to failed for good.
	Fail(ctx context.Context, job *Job, token string, reason string, retryDelay time.Duration) (int, error)
	PromoteDelayed(ctx context.Context, limit int64) (int, error)
	RecoverStalled(ctx context.Context) ([]string, error)

	Stats(ctx context.Context) (Stats, error)
	CleanFailed(ctx context.Context) (int, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Job(ctx context.Context, id string) (*Job, error)
	Failed(ctx context.Context, offset int64, limit int64) ([]*Job, error)
}
