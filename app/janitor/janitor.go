package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mailer/app/lock"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
)

const leaderKey = "mailer:email:janitor"

// HistoryPruner deletes final history rows older than a cutoff.
type HistoryPruner interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// StatsObserver receives a stats snapshot after every run.
type StatsObserver interface {
	ObserveStats(stats queue.Stats)
}

// Janitor runs periodic queue maintenance. Only the instance holding the
// leader lock does work in a given run.
type Janitor struct {
	store     queue.Store
	locker    lock.Locker
	listener  queue.Listener
	history   HistoryPruner
	retention time.Duration
	observer  StatsObserver
	lockTTL   time.Duration
	leaderKey string
	now       func() time.Time
	log       logrus.FieldLogger

	mu   sync.Mutex
	cron *cron.Cron
}

type Option func(*Janitor)

// WithHistory enables pruning of history rows older than retention.
func WithHistory(history HistoryPruner, retention time.Duration) Option {
	return func(j *Janitor) {
		j.history = history
		j.retention = retention
	}
}

// WithLockPrefix namespaces the leader lock like the queue keys.
func WithLockPrefix(prefix string) Option {
	return func(j *Janitor) {
		if prefix != "" {
			j.leaderKey = prefix + ":" + queue.Topic + ":janitor"
		}
	}
}

func WithObserver(observer StatsObserver) Option {
	return func(j *Janitor) { j.observer = observer }
}

// WithListener receives OnStalled for every job recovered.
func WithListener(listener queue.Listener) Option {
	return func(j *Janitor) {
		if listener != nil {
			j.listener = listener
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

func New(store queue.Store, locker lock.Locker, log logrus.FieldLogger, opts ...Option) *Janitor {
	j := &Janitor{
		store:     store,
		locker:    locker,
		listener:  queue.Listeners{},
		lockTTL:   time.Minute,
		leaderKey: leaderKey,
		now:       time.Now,
		log:       log.WithField("component", "janitor"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (j *Janitor) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(j.log))))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.lockTTL)
		defer cancel()
		if err := j.RunOnce(ctx); err != nil {
			j.log.WithError(err).Error("janitor run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	c.Start()
	j.cron = c
	j.log.WithField("schedule", schedule).Info("janitor started")
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		j.log.Warn("janitor stop timeout")
	}
}

// RunOnce performs one maintenance pass when the leader lock is free.
func (j *Janitor) RunOnce(ctx context.Context) error {
	if err := j.locker.Acquire(ctx, j.leaderKey, j.lockTTL); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, lock.ErrAlreadyHeld) {
			j.log.Debug("janitor lock held elsewhere, skipping run")
			return nil
		}
		return fmt.Errorf("acquire janitor lock: %w", err)
	}
	defer func() {
		_ = j.locker.Release(context.Background(), j.leaderKey)
	}()

	ids, err := j.store.RecoverStalled(ctx)
	if err != nil {
		return fmt.Errorf("recover stalled jobs: %w", err)
	}
	for _, id := range ids {
		j.listener.OnStalled(ctx, id)
	}

	var pruned int64
	if j.history != nil && j.retention > 0 {
		pruned, err = j.history.DeleteFinishedBefore(ctx, j.now().Add(-j.retention))
		if err != nil {
			return fmt.Errorf("prune email history: %w", err)
		}
	}

	if j.observer != nil {
		stats, err := j.store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("read stats: %w", err)
		}
		j.observer.ObserveStats(stats)
	}

	j.log.WithFields(logrus.Fields{
		"stalled": len(ids),
		"pruned":  pruned,
	}).Debug("janitor run finished")
	return nil
}
