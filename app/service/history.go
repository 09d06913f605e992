package service

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mailer/app/entity"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"github.com/vibast-solutions/ms-go-mailer/app/repository"
)

// HistoryRecorder mirrors job transitions into the email_history table.
// Write failures are logged and never affect the job.
type HistoryRecorder struct {
	history *repository.EmailHistoryRepository
	log     logrus.FieldLogger
}

func NewHistoryRecorder(history *repository.EmailHistoryRepository, log logrus.FieldLogger) *HistoryRecorder {
	return &HistoryRecorder{history: history, log: log}
}

// Find returns the history row of a job.
func (r *HistoryRecorder) Find(ctx context.Context, jobID string) (*entity.EmailHistory, error) {
	return r.history.FindByJobID(ctx, jobID)
}

func (r *HistoryRecorder) OnEnqueued(ctx context.Context, job *queue.Job) {
	err := r.create(ctx, &entity.EmailHistory{
		JobID:     job.ID,
		Recipient: job.Payload.To,
		Subject:   job.Payload.Subject,
		Status:    entity.EmailStatusNew,
		CreatedAt: job.CreatedAt.UTC(),
	})
	if err != nil {
		r.log.WithField("job_id", job.ID).WithError(err).Warn("failed to record email history")
	}
}

func (r *HistoryRecorder) OnActive(ctx context.Context, job *queue.Job) {
	r.update(ctx, job.ID, entity.EmailStatusProcessing, job.AttemptsMade, job.FailedReason)
}

func (r *HistoryRecorder) OnCompleted(ctx context.Context, job *queue.Job, _ *queue.Result) {
	r.update(ctx, job.ID, entity.EmailStatusSuccess, job.AttemptsMade, "")
}

func (r *HistoryRecorder) OnFailed(ctx context.Context, job *queue.Job, err error) {
	status := entity.EmailStatusTemporaryFailure
	var permanent *queue.PermanentFailureError
	if errors.As(err, &permanent) {
		status = entity.EmailStatusPermanentFailure
	}
	r.update(ctx, job.ID, status, job.AttemptsMade, err.Error())
}

func (r *HistoryRecorder) OnStalled(ctx context.Context, jobID string) {
	if err := r.history.SetStatus(ctx, jobID, entity.EmailStatusUnknownFailure); err != nil {
		r.log.WithField("job_id", jobID).WithError(err).Warn("failed to update email history")
	}
}

func (r *HistoryRecorder) create(ctx context.Context, h *entity.EmailHistory) error {
	if err := r.history.Create(ctx, h); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicateJobID
		}
		return err
	}
	return nil
}

func (r *HistoryRecorder) update(ctx context.Context, jobID string, status int16, retries int, lastError string) {
	if err := r.history.UpdateStatus(ctx, jobID, status, retries, lastError); err != nil {
		r.log.WithFields(logrus.Fields{
			"job_id": jobID,
			"status": status,
		}).WithError(err).Warn("failed to update email history")
	}
}
