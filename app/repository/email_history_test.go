package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/vibast-solutions/ms-go-mailer/app/entity"
)

func TestEmailHistoryRepositoryCRUD(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := NewEmailHistoryRepository(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("INSERT INTO email_history").
		WithArgs("job-1", "a@b.com", "subj", int16(0), created, created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.Create(context.Background(), &entity.EmailHistory{
		JobID:     "job-1",
		Recipient: "a@b.com",
		Subject:   "subj",
		Status:    entity.EmailStatusNew,
		CreatedAt: created,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectExec("UPDATE email_history").
		WithArgs(int16(40), 1, "transport: timeout", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.UpdateStatus(context.Background(), "job-1", entity.EmailStatusTemporaryFailure, 1, "transport: timeout"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	mock.ExpectQuery("SELECT job_id, recipient, subject, status, retries, last_error, created_at, updated_at").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "recipient", "subject", "status", "retries", "last_error", "created_at", "updated_at"}).
			AddRow("job-1", "a@b.com", "subj", int16(40), 1, "transport: timeout", created, created))
	h, err := repo.FindByJobID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("FindByJobID: %v", err)
	}
	if h.Status != entity.EmailStatusTemporaryFailure || h.Retries != 1 || h.LastError != "transport: timeout" {
		t.Fatalf("unexpected history: %+v", h)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEmailHistoryRepositoryNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT job_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))
	if _, err := NewEmailHistoryRepository(db).FindByJobID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmailHistoryRepositoryDeleteFinishedBefore(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM email_history").
		WithArgs(int16(10), int16(50), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := NewEmailHistoryRepository(db).DeleteFinishedBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteFinishedBefore: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 deleted, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
