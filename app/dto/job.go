package dto

import (
	"time"

	"github.com/vibast-solutions/ms-go-mailer/app/queue"
)

type JobView struct {
	ID           string        `json:"id"`
	State        string        `json:"state"`
	To           string        `json:"to"`
	Subject      string        `json:"subject"`
	AttemptsMade int           `json:"attempts_made"`
	Attempts     int           `json:"attempts"`
	FailedReason string        `json:"failed_reason,omitempty"`
	StalledCount int           `json:"stalled_count,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	DelayedUntil *time.Time    `json:"delayed_until,omitempty"`
	Result       *queue.Result `json:"result,omitempty"`
}

// NewJobView flattens a job for API responses. Bodies are omitted.
func NewJobView(job *queue.Job) JobView {
	return JobView{
		ID:           job.ID,
		State:        string(job.State),
		To:           job.Payload.To,
		Subject:      job.Payload.Subject,
		AttemptsMade: job.AttemptsMade,
		Attempts:     job.Options.Attempts,
		FailedReason: job.FailedReason,
		StalledCount: job.StalledCount,
		CreatedAt:    job.CreatedAt.UTC(),
		ProcessedAt:  optionalTime(job.ProcessedAt),
		FinishedAt:   optionalTime(job.FinishedAt),
		DelayedUntil: optionalTime(job.DelayedUntil),
		Result:       job.Result,
	}
}

func NewJobViews(jobs []*queue.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, NewJobView(job))
	}
	return views
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
