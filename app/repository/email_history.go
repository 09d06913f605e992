package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-mailer/app/entity"
)

var ErrNotFound = errors.New("email history not found")

const schema = `
	CREATE TABLE IF NOT EXISTS email_history (
		job_id VARCHAR(64) NOT NULL PRIMARY KEY,
		recipient VARCHAR(320) NOT NULL,
		subject VARCHAR(998) NOT NULL,
		status SMALLINT NOT NULL,
		retries INT NOT NULL DEFAULT 0,
		last_error TEXT NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		KEY idx_email_history_status_updated (status, updated_at)
	)
`

type EmailHistoryRepository struct {
	db *sql.DB
}

// NewEmailHistoryRepository constructs a repository backed by MySQL.
func NewEmailHistoryRepository(db *sql.DB) *EmailHistoryRepository {
	return &EmailHistoryRepository{db: db}
}

// EnsureSchema creates the email_history table when missing.
func (r *EmailHistoryRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Create inserts a new email history record.
func (r *EmailHistoryRepository) Create(ctx context.Context, h *entity.EmailHistory) error {
	const query = `
		INSERT INTO email_history (job_id, recipient, subject, status, retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, h.JobID, h.Recipient, h.Subject, h.Status, h.CreatedAt, h.CreatedAt)
	return err
}

// UpdateStatus records the latest status of a job.
func (r *EmailHistoryRepository) UpdateStatus(ctx context.Context, jobID string, status int16, retries int, lastError string) error {
	const query = `
		UPDATE email_history
		SET status = ?, retries = ?, last_error = ?, updated_at = ?
		WHERE job_id = ?
	`
	var errText sql.NullString
	if lastError != "" {
		errText = sql.NullString{String: lastError, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, status, retries, errText, time.Now().UTC(), jobID)
	return err
}

// SetStatus changes only the status of a job.
func (r *EmailHistoryRepository) SetStatus(ctx context.Context, jobID string, status int16) error {
	const query = `
		UPDATE email_history
		SET status = ?, updated_at = ?
		WHERE job_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), jobID)
	return err
}

// FindByJobID loads the history row of a job.
func (r *EmailHistoryRepository) FindByJobID(ctx context.Context, jobID string) (*entity.EmailHistory, error) {
	const query = `
		SELECT job_id, recipient, subject, status, retries, last_error, created_at, updated_at
		FROM email_history
		WHERE job_id = ?
	`
	var (
		h         entity.EmailHistory
		lastError sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&h.JobID, &h.Recipient, &h.Subject, &h.Status, &h.Retries, &lastError, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	h.LastError = lastError.String
	return &h, nil
}

// DeleteFinishedBefore removes final rows last updated before the cutoff.
func (r *EmailHistoryRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		DELETE FROM email_history
		WHERE status IN (?, ?) AND updated_at < ?
	`
	res, err := r.db.ExecContext(ctx, query, entity.EmailStatusSuccess, entity.EmailStatusPermanentFailure, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
