package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mailer/app/lock"
	"github.com/vibast-solutions/ms-go-mailer/app/provider"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
)

// EmailService delivers one email job through the configured provider.
type EmailService struct {
	provider    provider.EmailProvider
	locker      lock.Locker
	log         logrus.FieldLogger
	lockPrefix  string
	sendLockTTL time.Duration
}

type Option func(*EmailService)

// WithLockPrefix namespaces the send lock like the queue keys.
func WithLockPrefix(prefix string) Option {
	return func(s *EmailService) {
		if prefix != "" {
			s.lockPrefix = prefix
		}
	}
}

// WithSendLockTTL sets how long the send lock outlives a crashed worker. It
// should match the job lock duration so a reclaimed job can send again.
func WithSendLockTTL(ttl time.Duration) Option {
	return func(s *EmailService) {
		if ttl > 0 {
			s.sendLockTTL = ttl
		}
	}
}

// NewEmailService builds the email service with dependencies.
func NewEmailService(provider provider.EmailProvider, locker lock.Locker, log logrus.FieldLogger, opts ...Option) *EmailService {
	s := &EmailService{
		provider:    provider,
		locker:      locker,
		log:         log,
		lockPrefix:  queue.DefaultPrefix,
		sendLockTTL: queue.DefaultConsumerConfig().LockDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EmailService) sendLockKey(jobID string) string {
	return fmt.Sprintf("%s:%s:send:%s", s.lockPrefix, queue.Topic, jobID)
}

// Process sends the job payload. Provider errors are returned as
// *queue.TransportError so the queue retries them.
func (s *EmailService) Process(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	payload := job.Payload
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	lockKey := s.sendLockKey(job.ID)
	if err := s.locker.Acquire(ctx, lockKey, s.sendLockTTL); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, lock.ErrAlreadyHeld) {
			return nil, fmt.Errorf("%w: job %s", ErrSendInProgress, job.ID)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		_ = s.locker.Release(context.Background(), lockKey)
	}()

	log := s.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"recipient": payload.To,
		"attempt":   job.AttemptsMade + 1,
	})

	err := s.provider.Send(ctx, provider.Message{
		To:      payload.To,
		Subject: payload.Subject,
		HTML:    payload.HTML,
		Text:    payload.Text,
	})
	if err != nil {
		log.WithError(err).Warn("email delivery attempt failed")
		return nil, &queue.TransportError{Err: err}
	}

	log.Info("email delivered")
	return &queue.Result{Success: true, To: payload.To, Subject: payload.Subject}, nil
}
