package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := newFakeClock()
	store := NewRedisStore(client, Topic, WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return store, mr, clock
}

func newTestLogger() logrus.FieldLogger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

type recordingListener struct {
	mu        sync.Mutex
	enqueued  []string
	active    []string
	completed []string
	failed    []error
	stalled   []string
}

func (l *recordingListener) OnEnqueued(_ context.Context, job *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enqueued = append(l.enqueued, job.ID)
}

func (l *recordingListener) OnActive(_ context.Context, job *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = append(l.active, job.ID)
}

func (l *recordingListener) OnCompleted(_ context.Context, job *Job, _ *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, job.ID)
}

func (l *recordingListener) OnFailed(_ context.Context, _ *Job, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, err)
}

func (l *recordingListener) OnStalled(_ context.Context, jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stalled = append(l.stalled, jobID)
}

type fakeProcessor struct {
	mu       sync.Mutex
	err      error
	panicMsg string
	payloads []EmailPayload
}

func (p *fakeProcessor) Process(_ context.Context, job *Job) (*Result, error) {
	p.mu.Lock()
	p.payloads = append(p.payloads, job.Payload)
	p.mu.Unlock()

	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.err != nil {
		return nil, &TransportError{Err: p.err}
	}
	return &Result{Success: true, To: job.Payload.To, Subject: job.Payload.Subject}, nil
}

func (p *fakeProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func welcomePayload() EmailPayload {
	return EmailPayload{To: "a@b.com", Subject: "Welcome", HTML: "<p>Hi</p>", Text: "Hi"}
}
