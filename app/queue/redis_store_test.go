package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func addJob(t *testing.T, store *RedisStore, payload EmailPayload, opts ...Option) *Job {
	t.Helper()
	job := &Job{Payload: payload, Options: Merge(DefaultJobOptions(), opts...)}
	if err := store.Add(context.Background(), job); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return job
}

func claim(t *testing.T, store *RedisStore, token string) *Job {
	t.Helper()
	job, err := store.Claim(context.Background(), token, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	return job
}

func TestRedisStoreClaimOldestFirst(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	first := addJob(t, store, EmailPayload{To: "first@b.com"})
	second := addJob(t, store, EmailPayload{To: "second@b.com"})

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct ids, got %q and %q", first.ID, second.ID)
	}

	got := claim(t, store, "t1")
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected %s first, got %+v", first.ID, got)
	}
	if got.State != StateActive || got.Payload.To != "first@b.com" {
		t.Fatalf("unexpected claimed job: %+v", got)
	}
	if got := claim(t, store, "t2"); got == nil || got.ID != second.ID {
		t.Fatalf("expected %s second, got %+v", second.ID, got)
	}
	if got := claim(t, store, "t3"); got != nil {
		t.Fatalf("expected no job, got %+v", got)
	}
}

func TestRedisStoreHighPriorityClaimedFirst(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	addJob(t, store, EmailPayload{To: "normal@b.com"})
	urgent := addJob(t, store, EmailPayload{To: "urgent@b.com"}, WithPriority(PriorityHigh))

	if got := claim(t, store, "t1"); got == nil || got.ID != urgent.ID {
		t.Fatalf("expected high priority job first, got %+v", got)
	}
}

func TestRedisStorePauseStopsClaims(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	ctx := context.Background()
	addJob(t, store, welcomePayload())

	for i := 0; i < 2; i++ {
		if err := store.Pause(ctx); err != nil {
			t.Fatalf("Pause #%d: %v", i+1, err)
		}
	}
	if got := claim(t, store, "t1"); got != nil {
		t.Fatalf("expected no claim while paused, got %+v", got)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.Paused || stats.Waiting != 1 {
		t.Fatalf("unexpected stats while paused: %+v", stats)
	}

	for i := 0; i < 2; i++ {
		if err := store.Resume(ctx); err != nil {
			t.Fatalf("Resume #%d: %v", i+1, err)
		}
	}
	if got := claim(t, store, "t1"); got == nil {
		t.Fatalf("expected claim after resume")
	}
}

func TestRedisStoreCompleteEvictsBeyondCap(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		addJob(t, store, welcomePayload(), WithRetainCompleted(2))
		job := claim(t, store, "tok")
		if err := store.Complete(ctx, job, "tok", &Result{Success: true, To: job.Payload.To}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if job.State != StateCompleted || job.AttemptsMade != 1 {
			t.Fatalf("unexpected job after complete: %+v", job)
		}
		ids = append(ids, job.ID)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Completed != 2 || stats.Active != 0 {
		t.Fatalf("expected 2 retained completed jobs, got %+v", stats)
	}
	if _, err := store.Job(ctx, ids[0]); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected oldest job evicted, got %v", err)
	}
	kept, err := store.Job(ctx, ids[2])
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if kept.Result == nil || !kept.Result.Success || kept.FinishedAt.IsZero() {
		t.Fatalf("expected stored result, got %+v", kept)
	}
}

func TestRedisStoreFailSchedulesRetry(t *testing.T) {
	t.Parallel()

	store, mr, clock := newTestStore(t)
	ctx := context.Background()
	addJob(t, store, welcomePayload())

	job := claim(t, store, "tok")
	attempts, err := store.Fail(ctx, job, "tok", "SMTP timeout", 2*time.Second)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if attempts != 1 || job.State != StateDelayed {
		t.Fatalf("expected delayed after first failure, got attempts=%d state=%s", attempts, job.State)
	}

	due := clock.Now().Add(2 * time.Second).UnixMilli()
	score, err := mr.ZScore("mailer:email:delayed", job.ID)
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if int64(score) != due {
		t.Fatalf("expected due %d, got %v", due, score)
	}

	clock.Advance(1999 * time.Millisecond)
	if n, err := store.PromoteDelayed(ctx, 10); err != nil || n != 0 {
		t.Fatalf("expected nothing promoted early, got n=%d err=%v", n, err)
	}
	clock.Advance(time.Millisecond)
	if n, err := store.PromoteDelayed(ctx, 10); err != nil || n != 1 {
		t.Fatalf("expected one promoted job, got n=%d err=%v", n, err)
	}

	again := claim(t, store, "tok2")
	if again == nil || again.ID != job.ID || again.AttemptsMade != 1 || again.FailedReason != "SMTP timeout" {
		t.Fatalf("unexpected reclaimed job: %+v", again)
	}
}

func TestRedisStoreFailWithoutDelayRequeues(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	addJob(t, store, welcomePayload())

	job := claim(t, store, "tok")
	if _, err := store.Fail(context.Background(), job, "tok", "boom", 0); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if job.State != StateWaiting {
		t.Fatalf("expected waiting, got %s", job.State)
	}
	if got := claim(t, store, "tok2"); got == nil || got.ID != job.ID {
		t.Fatalf("expected job requeued, got %+v", got)
	}
}

func TestRedisStoreFinalFailureAndClean(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	ctx := context.Background()
	addJob(t, store, welcomePayload())

	job := claim(t, store, "tok")
	if _, err := store.Fail(ctx, job, "tok", "bad recipient", -1); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if job.State != StateFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}

	failed, err := store.Failed(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Failed: %v", err)
	}
	if len(failed) != 1 || failed[0].FailedReason != "bad recipient" || failed[0].Payload != welcomePayload() {
		t.Fatalf("unexpected failed listing: %+v", failed)
	}

	n, err := store.CleanFailed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 cleaned, got n=%d err=%v", n, err)
	}
	n, err = store.CleanFailed(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent clean, got n=%d err=%v", n, err)
	}
	if _, err := store.Job(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected job removed, got %v", err)
	}
}

func TestRedisStoreFailedRetentionCap(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		addJob(t, store, welcomePayload(), WithRetainFailed(1))
		job := claim(t, store, "tok")
		if _, err := store.Fail(ctx, job, "tok", "boom", -1); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected 1 retained failed job, got %d", stats.Failed)
	}
}

func TestRedisStoreRecoverStalled(t *testing.T) {
	t.Parallel()

	store, mr, _ := newTestStore(t)
	ctx := context.Background()
	addJob(t, store, welcomePayload())

	job, err := store.Claim(ctx, "tok", time.Second)
	if err != nil || job == nil {
		t.Fatalf("Claim: job=%v err=%v", job, err)
	}

	if ids, err := store.RecoverStalled(ctx); err != nil || len(ids) != 0 {
		t.Fatalf("expected no stalled jobs while locked, got ids=%v err=%v", ids, err)
	}

	mr.FastForward(2 * time.Second)
	ids, err := store.RecoverStalled(ctx)
	if err != nil {
		t.Fatalf("RecoverStalled: %v", err)
	}
	if len(ids) != 1 || ids[0] != job.ID {
		t.Fatalf("expected %s stalled, got %v", job.ID, ids)
	}

	if err := store.Complete(ctx, job, "tok", &Result{Success: true}); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}

	reclaimed := claim(t, store, "tok2")
	if reclaimed == nil || reclaimed.ID != job.ID || reclaimed.StalledCount != 1 || reclaimed.AttemptsMade != 0 {
		t.Fatalf("unexpected reclaimed job: %+v", reclaimed)
	}
}

func TestRedisStoreExtendLock(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	ctx := context.Background()
	addJob(t, store, welcomePayload())
	job := claim(t, store, "tok")

	if err := store.ExtendLock(ctx, job.ID, "tok", time.Minute); err != nil {
		t.Fatalf("ExtendLock: %v", err)
	}
	if err := store.ExtendLock(ctx, job.ID, "other", time.Minute); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
}

func TestRedisStoreDelayedAdd(t *testing.T) {
	t.Parallel()

	store, _, clock := newTestStore(t)
	ctx := context.Background()
	job := addJob(t, store, welcomePayload(), WithDelay(5*time.Second))

	if job.State != StateDelayed {
		t.Fatalf("expected delayed, got %s", job.State)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Delayed != 1 || stats.Waiting != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	clock.Advance(5 * time.Second)
	if n, err := store.PromoteDelayed(ctx, 10); err != nil || n != 1 {
		t.Fatalf("expected promotion, got n=%d err=%v", n, err)
	}
	if got := claim(t, store, "tok"); got == nil || got.ID != job.ID {
		t.Fatalf("expected delayed job claimed, got %+v", got)
	}
}
