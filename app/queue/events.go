package queue

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Listener observes job transitions. Implementations must not block for long
// and must not fail the job; they are informational only.
type Listener interface {
	OnEnqueued(ctx context.Context, job *Job)
	OnActive(ctx context.Context, job *Job)
	OnCompleted(ctx context.Context, job *Job, result *Result)
	// OnFailed is called for every failed attempt. err is a
	// *PermanentFailureError when no attempts remain.
	OnFailed(ctx context.Context, job *Job, err error)
	OnStalled(ctx context.Context, jobID string)
}

// Listeners fans events out to every member in order.
type Listeners []Listener

func (l Listeners) OnEnqueued(ctx context.Context, job *Job) {
	for _, listener := range l {
		listener.OnEnqueued(ctx, job)
	}
}

func (l Listeners) OnActive(ctx context.Context, job *Job) {
	for _, listener := range l {
		listener.OnActive(ctx, job)
	}
}

func (l Listeners) OnCompleted(ctx context.Context, job *Job, result *Result) {
	for _, listener := range l {
		listener.OnCompleted(ctx, job, result)
	}
}

func (l Listeners) OnFailed(ctx context.Context, job *Job, err error) {
	for _, listener := range l {
		listener.OnFailed(ctx, job, err)
	}
}

func (l Listeners) OnStalled(ctx context.Context, jobID string) {
	for _, listener := range l {
		listener.OnStalled(ctx, jobID)
	}
}

// LogListener writes one structured log line per transition.
type LogListener struct {
	log logrus.FieldLogger
}

func NewLogListener(log logrus.FieldLogger) *LogListener {
	return &LogListener{log: log}
}

func (l *LogListener) OnEnqueued(_ context.Context, job *Job) {
	l.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"recipient": job.Payload.To,
		"state":     job.State,
	}).Debug("email job enqueued")
}

func (l *LogListener) OnActive(_ context.Context, job *Job) {
	l.log.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"attempts_made": job.AttemptsMade,
	}).Debug("email job active")
}

func (l *LogListener) OnCompleted(_ context.Context, job *Job, _ *Result) {
	l.log.WithField("job_id", job.ID).Debug("email job completed")
}

func (l *LogListener) OnFailed(_ context.Context, job *Job, err error) {
	var permanent *PermanentFailureError
	l.log.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"attempts_made": job.AttemptsMade,
		"final":         errors.As(err, &permanent),
		"error":         err.Error(),
	}).Error("email job failed")
}

func (l *LogListener) OnStalled(_ context.Context, jobID string) {
	l.log.WithField("job_id", jobID).Warn("email job stalled, returned to waiting")
}
