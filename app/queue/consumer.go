package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// MinLockDuration is the shortest job lock the consumer accepts.
	MinLockDuration = 500 * time.Millisecond

	storeWriteTimeout = 10 * time.Second
)

type ConsumerConfig struct {
	// Concurrency is the number of claim loops.
	Concurrency int
	// PollInterval is how long an idle loop waits before claiming again.
	PollInterval time.Duration
	// LockDuration is the TTL of a job lock; it is renewed at half of it.
	LockDuration time.Duration
	// StalledInterval is how often expired locks are looked for.
	StalledInterval time.Duration
	// PromoteBatch bounds delayed jobs promoted per claim.
	PromoteBatch int64
	// RateLimit caps processed jobs per second. Zero disables it.
	RateLimit float64
	// JobTimeout bounds a single attempt. Zero means no timeout.
	JobTimeout time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Concurrency:     1,
		PollInterval:    time.Second,
		LockDuration:    30 * time.Second,
		StalledInterval: 30 * time.Second,
		PromoteBatch:    100,
	}
}

// EmailConsumer claims email jobs and hands them to a Processor. Retry and
// backoff decisions live here, next to the store, so the processor stays a
// plain "do it or return an error" function.
type EmailConsumer struct {
	store     Store
	processor Processor
	listener  Listener
	name      string
	cfg       ConsumerConfig
	limiter   *rate.Limiter
	log       logrus.FieldLogger
}

// NewEmailConsumer constructs a consumer. Zero config values take defaults.
func NewEmailConsumer(store Store, processor Processor, listener Listener, name string, cfg ConsumerConfig, log logrus.FieldLogger) *EmailConsumer {
	defaults := DefaultConsumerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = defaults.LockDuration
	}
	if cfg.LockDuration < MinLockDuration {
		cfg.LockDuration = MinLockDuration
	}
	if cfg.StalledInterval <= 0 {
		cfg.StalledInterval = defaults.StalledInterval
	}
	if cfg.PromoteBatch <= 0 {
		cfg.PromoteBatch = defaults.PromoteBatch
	}
	if listener == nil {
		listener = Listeners{}
	}

	c := &EmailConsumer{
		store:     store,
		processor: processor,
		listener:  listener,
		name:      name,
		cfg:       cfg,
		log:       log.WithField("consumer", name),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Run processes jobs until ctx is cancelled. Jobs already claimed are
// finished before Run returns.
func (c *EmailConsumer) Run(ctx context.Context) error {
	c.log.WithField("concurrency", c.cfg.Concurrency).Infof("Consumer %s started on topic %s", c.name, Topic)

	c.recoverStalled(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchStalled(ctx)
	}()

	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			c.loop(ctx, slot)
		}(i)
	}

	wg.Wait()
	c.log.Info("Consumer shutting down")
	return nil
}

// Drain processes ready jobs until none is left or ctx is cancelled and
// returns how many were processed.
func (c *EmailConsumer) Drain(ctx context.Context) (int, error) {
	c.recoverStalled(ctx)

	processed := 0
	for ctx.Err() == nil {
		ok, err := c.ProcessOne(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			break
		}
		processed++
	}
	return processed, nil
}

func (c *EmailConsumer) loop(ctx context.Context, slot int) {
	log := c.log.WithField("slot", slot)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxInterval = 10 * time.Second
	retry.MaxElapsedTime = 0
	retry.Reset()

	for ctx.Err() == nil {
		ok, err := c.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := retry.NextBackOff()
			log.WithError(err).WithField("retry_in", wait).Warn("claim failed")
			sleep(ctx, wait)
			continue
		}
		retry.Reset()
		if !ok {
			sleep(ctx, c.cfg.PollInterval)
		}
	}
}

// ProcessOne promotes due delayed jobs, then claims and processes at most
// one job. It reports whether a job was processed.
func (c *EmailConsumer) ProcessOne(ctx context.Context) (bool, error) {
	if _, err := c.store.PromoteDelayed(ctx, c.cfg.PromoteBatch); err != nil {
		return false, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, nil
		}
	}

	token := uuid.NewString()
	job, err := c.store.Claim(ctx, token, c.cfg.LockDuration)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	c.process(ctx, job, token)
	return true, nil
}

func (c *EmailConsumer) process(ctx context.Context, job *Job, token string) {
	baseCtx := context.WithoutCancel(ctx)
	log := c.log.WithField("job_id", job.ID)

	c.listener.OnActive(baseCtx, job)

	stop := c.keepLock(baseCtx, job.ID, token)
	result, procErr := c.runAttempt(baseCtx, job)
	stop()

	// The attempt deadline must not reach the store writes, or a timed-out
	// attempt would never be recorded.
	storeCtx, cancel := context.WithTimeout(baseCtx, storeWriteTimeout)
	defer cancel()

	if procErr == nil {
		if result == nil {
			result = &Result{Success: true, To: job.Payload.To, Subject: job.Payload.Subject}
		}
		if err := c.store.Complete(storeCtx, job, token, result); err != nil {
			log.WithError(err).Error("failed to mark job completed")
			return
		}
		c.listener.OnCompleted(baseCtx, job, result)
		return
	}

	attempt := job.AttemptsMade + 1
	retryDelay := time.Duration(-1)
	if attempt < job.Options.Attempts {
		retryDelay = job.Options.Backoff.Next(attempt)
	}

	if _, err := c.store.Fail(storeCtx, job, token, procErr.Error(), retryDelay); err != nil {
		log.WithError(err).Error("failed to record failed attempt")
		return
	}

	reported := procErr
	if job.State == StateFailed {
		reported = &PermanentFailureError{JobID: job.ID, Attempts: job.AttemptsMade, Err: procErr}
	}
	c.listener.OnFailed(baseCtx, job, reported)
}

// runAttempt calls the processor under JobTimeout when one is set.
func (c *EmailConsumer) runAttempt(ctx context.Context, job *Job) (*Result, error) {
	if c.cfg.JobTimeout <= 0 {
		return c.safeProcess(ctx, job)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	return c.safeProcess(attemptCtx, job)
}

func (c *EmailConsumer) safeProcess(ctx context.Context, job *Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return c.processor.Process(ctx, job)
}

// keepLock renews the job lock until the returned func is called.
func (c *EmailConsumer) keepLock(ctx context.Context, jobID string, token string) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.cfg.LockDuration / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.store.ExtendLock(ctx, jobID, token, c.cfg.LockDuration); err != nil {
					c.log.WithField("job_id", jobID).WithError(err).Warn("failed to extend job lock")
					if errors.Is(err, ErrLockLost) {
						return
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (c *EmailConsumer) watchStalled(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.StalledInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.recoverStalled(ctx)
		}
	}
}

func (c *EmailConsumer) recoverStalled(ctx context.Context) {
	ids, err := c.store.RecoverStalled(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.WithError(err).Warn("stalled job check failed")
		}
		return
	}
	for _, id := range ids {
		c.listener.OnStalled(ctx, id)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
