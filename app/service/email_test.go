package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vibast-solutions/ms-go-mailer/app/entity"
	"github.com/vibast-solutions/ms-go-mailer/app/lock"
	"github.com/vibast-solutions/ms-go-mailer/app/provider"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"github.com/vibast-solutions/ms-go-mailer/app/repository"
)

type fakeLocker struct {
	acquireErr error
	acquired   []string
	ttls       []time.Duration
	released   []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string, ttl time.Duration) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired = append(l.acquired, key)
	l.ttls = append(l.ttls, ttl)
	return nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.released = append(l.released, key)
	return nil
}

type fakeProvider struct {
	err  error
	sent []provider.Message
}

func (p *fakeProvider) Send(_ context.Context, msg provider.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func newRepo(t *testing.T) (*repository.EmailHistoryRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return repository.NewEmailHistoryRepository(db), mock, func() { _ = db.Close() }
}

func newJob() *queue.Job {
	return &queue.Job{
		ID:        "job-1",
		Payload:   queue.EmailPayload{To: "a@b.com", Subject: "Welcome", HTML: "<p>Hi</p>", Text: "Hi"},
		Options:   queue.DefaultJobOptions(),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEmailServiceProcessSuccess(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{}
	locker := &fakeLocker{}
	logger, _ := logtest.NewNullLogger()
	svc := NewEmailService(prov, locker, logger)

	result, err := svc.Process(context.Background(), newJob())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := queue.Result{Success: true, To: "a@b.com", Subject: "Welcome"}
	if result == nil || *result != want {
		t.Fatalf("expected %+v, got %+v", want, result)
	}
	if len(prov.sent) != 1 || prov.sent[0].HTML != "<p>Hi</p>" || prov.sent[0].Text != "Hi" {
		t.Fatalf("unexpected sent messages: %+v", prov.sent)
	}
	if len(locker.acquired) != 1 || len(locker.released) != 1 || locker.acquired[0] != "mailer:email:send:job-1" {
		t.Fatalf("expected lock acquire/release, got acquired=%v released=%v", locker.acquired, locker.released)
	}
}

func TestEmailServiceSendLockFollowsQueueSettings(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	logger, _ := logtest.NewNullLogger()
	svc := NewEmailService(&fakeProvider{}, locker, logger, WithLockPrefix("tenant-a"), WithSendLockTTL(10*time.Second))

	if _, err := svc.Process(context.Background(), newJob()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(locker.acquired) != 1 || locker.acquired[0] != "tenant-a:email:send:job-1" {
		t.Fatalf("expected prefixed lock key, got %v", locker.acquired)
	}
	if locker.ttls[0] != 10*time.Second {
		t.Fatalf("expected lock ttl 10s, got %v", locker.ttls[0])
	}

	defaults := &fakeLocker{}
	if _, err := NewEmailService(&fakeProvider{}, defaults, logger).Process(context.Background(), newJob()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if defaults.ttls[0] != queue.DefaultConsumerConfig().LockDuration {
		t.Fatalf("expected send lock ttl to match job lock, got %v", defaults.ttls[0])
	}
}

func TestEmailServiceSendsAfterCrashedWorkerIsRecovered(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := queue.NewRedisStore(client, queue.Topic)
	q := queue.NewEmailQueue(store, queue.DefaultJobOptions(), nil)
	ctx := context.Background()
	if err := q.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	handle, err := q.Enqueue(ctx, queue.EmailPayload{To: "a@b.com", Subject: "Welcome"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	cfg := queue.DefaultConsumerConfig()
	logger, _ := logtest.NewNullLogger()
	prov := &fakeProvider{}
	svc := NewEmailService(prov, lock.NewRedisLocker(client), logger, WithSendLockTTL(cfg.LockDuration))

	// A worker claims the job, takes the send lock and dies without
	// releasing either.
	claimed, err := store.Claim(ctx, "crashed-worker", cfg.LockDuration)
	if err != nil || claimed == nil {
		t.Fatalf("Claim: job=%v err=%v", claimed, err)
	}
	if err := lock.NewRedisLocker(client).Acquire(ctx, svc.sendLockKey(claimed.ID), cfg.LockDuration); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	mr.FastForward(cfg.LockDuration + time.Second)

	consumer := queue.NewEmailConsumer(store, svc, nil, "survivor", cfg, logger)
	n, err := consumer.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Drain: n=%d err=%v", n, err)
	}

	job, err := q.Job(ctx, handle.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.State != queue.StateCompleted || job.AttemptsMade != 1 {
		t.Fatalf("expected completed on first recovered attempt, got state=%s attempts=%d reason=%q", job.State, job.AttemptsMade, job.FailedReason)
	}
	if len(prov.sent) != 1 {
		t.Fatalf("expected provider called once, got %d", len(prov.sent))
	}
}

func TestEmailServiceProcessProviderFailure(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("SMTP timeout")
	locker := &fakeLocker{}
	logger, _ := logtest.NewNullLogger()
	svc := NewEmailService(&fakeProvider{err: sendErr}, locker, logger)

	_, err := svc.Process(context.Background(), newJob())
	var transport *queue.TransportError
	if !errors.As(err, &transport) || !errors.Is(err, sendErr) {
		t.Fatalf("expected transport error wrapping provider error, got %v", err)
	}
	if len(locker.released) != 1 {
		t.Fatalf("expected lock released after failure")
	}
}

func TestEmailServiceProcessLockHeld(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{}
	logger, _ := logtest.NewNullLogger()
	svc := NewEmailService(prov, &fakeLocker{acquireErr: lock.ErrNotAcquired}, logger)

	if _, err := svc.Process(context.Background(), newJob()); !errors.Is(err, ErrSendInProgress) {
		t.Fatalf("expected ErrSendInProgress, got %v", err)
	}
	if len(prov.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestEmailServiceProcessInvalidPayload(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	svc := NewEmailService(&fakeProvider{}, &fakeLocker{}, logger)
	job := newJob()
	job.Payload.To = ""

	if _, err := svc.Process(context.Background(), job); !errors.Is(err, queue.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestHistoryRecorderLifecycle(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newRepo(t)
	defer cleanup()

	logger, hook := logtest.NewNullLogger()
	recorder := NewHistoryRecorder(repo, logger)
	job := newJob()
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO email_history").
		WithArgs("job-1", "a@b.com", "Welcome", entity.EmailStatusNew, job.CreatedAt, job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	recorder.OnEnqueued(ctx, job)

	mock.ExpectExec("UPDATE email_history").
		WithArgs(entity.EmailStatusProcessing, 0, nil, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	recorder.OnActive(ctx, job)

	job.AttemptsMade = 1
	mock.ExpectExec("UPDATE email_history").
		WithArgs(entity.EmailStatusTemporaryFailure, 1, "transport: timeout", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	recorder.OnFailed(ctx, job, &queue.TransportError{Err: errors.New("timeout")})

	job.AttemptsMade = 3
	final := &queue.PermanentFailureError{JobID: "job-1", Attempts: 3, Err: errors.New("timeout")}
	mock.ExpectExec("UPDATE email_history").
		WithArgs(entity.EmailStatusPermanentFailure, 3, final.Error(), sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	recorder.OnFailed(ctx, job, final)

	mock.ExpectExec("UPDATE email_history").
		WithArgs(entity.EmailStatusUnknownFailure, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	recorder.OnStalled(ctx, "job-1")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected no warnings, got %d", len(hook.AllEntries()))
	}
}

func TestHistoryRecorderDuplicateIsLogged(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newRepo(t)
	defer cleanup()

	logger, hook := logtest.NewNullLogger()
	recorder := NewHistoryRecorder(repo, logger)
	job := newJob()

	mock.ExpectExec("INSERT INTO email_history").
		WillReturnError(&mysql.MySQLError{Number: 1062})
	recorder.OnEnqueued(context.Background(), job)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("expected warning")
	}
	if err, ok := entry.Data["error"].(error); !ok || !errors.Is(err, ErrDuplicateJobID) {
		t.Fatalf("expected ErrDuplicateJobID logged, got %v", entry.Data["error"])
	}
}
