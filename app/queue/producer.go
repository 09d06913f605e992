package queue

import (
	"context"
	"errors"
	"fmt"
)

// EmailQueue is the client side of the email topic: it persists send
// requests and exposes the administration operations. It never sends mail.
type EmailQueue struct {
	store    Store
	defaults JobOptions
	listener Listener
}

// NewEmailQueue constructs a queue client over store. A nil listener is
// allowed.
func NewEmailQueue(store Store, defaults JobOptions, listener Listener) *EmailQueue {
	if listener == nil {
		listener = Listeners{}
	}
	return &EmailQueue{store: store, defaults: defaults, listener: listener}
}

func (q *EmailQueue) Init(ctx context.Context) error {
	if err := q.store.Init(ctx); err != nil {
		return unavailable("init", err)
	}
	return nil
}

func (q *EmailQueue) Close() error {
	return q.store.Close()
}

// Defaults returns the options every job starts from.
func (q *EmailQueue) Defaults() JobOptions {
	return q.defaults
}

// Enqueue persists payload and returns as soon as the store acknowledged it.
func (q *EmailQueue) Enqueue(ctx context.Context, payload EmailPayload, opts ...Option) (*JobHandle, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	options := Merge(q.defaults, opts...)
	if err := options.Validate(); err != nil {
		return nil, err
	}

	job := &Job{Payload: payload, Options: options}
	if err := q.store.Add(ctx, job); err != nil {
		return nil, unavailable("enqueue", err)
	}

	q.listener.OnEnqueued(ctx, job)
	return &JobHandle{ID: job.ID}, nil
}

func (q *EmailQueue) GetStats(ctx context.Context) (Stats, error) {
	stats, err := q.store.Stats(ctx)
	if err != nil {
		return Stats{}, unavailable("stats", err)
	}
	return stats, nil
}

// ClearFailedJobs removes every job in the failed state.
func (q *EmailQueue) ClearFailedJobs(ctx context.Context) (int, error) {
	n, err := q.store.CleanFailed(ctx)
	if err != nil {
		return 0, unavailable("clear failed", err)
	}
	return n, nil
}

// PauseQueue stops consumers from claiming new jobs. Jobs already claimed
// run to completion.
func (q *EmailQueue) PauseQueue(ctx context.Context) error {
	if err := q.store.Pause(ctx); err != nil {
		return unavailable("pause", err)
	}
	return nil
}

func (q *EmailQueue) ResumeQueue(ctx context.Context) error {
	if err := q.store.Resume(ctx); err != nil {
		return unavailable("resume", err)
	}
	return nil
}

func (q *EmailQueue) Job(ctx context.Context, id string) (*Job, error) {
	job, err := q.store.Job(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, unavailable("get job", err)
	}
	return job, nil
}

func (q *EmailQueue) FailedJobs(ctx context.Context, offset int64, limit int64) ([]*Job, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}
	jobs, err := q.store.Failed(ctx, offset, limit)
	if err != nil {
		return nil, unavailable("list failed", err)
	}
	return jobs, nil
}
