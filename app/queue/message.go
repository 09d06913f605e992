package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Topic is the queue partition email jobs are stored under.
const Topic = "email"

// maxBackoff caps a single retry delay.
const maxBackoff = 24 * time.Hour

type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Validate checks the payload shape. Content is not inspected.
func (p EmailPayload) Validate() error {
	if strings.TrimSpace(p.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidPayload)
	}
	return nil
}

type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// Next returns the delay before the retry that follows the given number of
// finished attempts. Exponential backoff yields Delay * 2^(attemptsMade-1).
func (b Backoff) Next(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	if b.Type == BackoffFixed || b.Delay <= 0 {
		return b.Delay
	}
	if b.Delay >= maxBackoff {
		return maxBackoff
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Delay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = maxBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()

	var next time.Duration
	for i := 0; i < attemptsMade; i++ {
		next = eb.NextBackOff()
	}
	return next
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// JobOptions control retry, retention and scheduling of a single job.
type JobOptions struct {
	Attempts        int           `json:"attempts"`
	Backoff         Backoff       `json:"backoff"`
	RetainCompleted int           `json:"retainCompleted"`
	RetainFailed    int           `json:"retainFailed"`
	Priority        Priority      `json:"priority,omitempty"`
	Delay           time.Duration `json:"delay,omitempty"`
}

// DefaultJobOptions returns the queue-wide defaults.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Attempts: 3,
		Backoff: Backoff{
			Type:  BackoffExponential,
			Delay: 2000 * time.Millisecond,
		},
		RetainCompleted: 100,
		RetainFailed:    500,
		Priority:        PriorityNormal,
	}
}

// Validate rejects option combinations the store cannot honour.
func (o JobOptions) Validate() error {
	if o.Attempts < 1 {
		return fmt.Errorf("%w: attempts must be at least 1", ErrInvalidOptions)
	}
	switch o.Backoff.Type {
	case BackoffExponential, BackoffFixed:
	default:
		return fmt.Errorf("%w: unknown backoff type %q", ErrInvalidOptions, o.Backoff.Type)
	}
	if o.Backoff.Delay < 0 {
		return fmt.Errorf("%w: backoff delay must not be negative", ErrInvalidOptions)
	}
	if o.Backoff.Delay > maxBackoff {
		return fmt.Errorf("%w: backoff delay must not exceed %s", ErrInvalidOptions, maxBackoff)
	}
	if o.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidOptions)
	}
	switch o.Priority {
	case "", PriorityNormal, PriorityHigh:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidOptions, o.Priority)
	}
	return nil
}

// Option overrides a single key of the default job options.
type Option func(*JobOptions)

func WithAttempts(n int) Option {
	return func(o *JobOptions) { o.Attempts = n }
}

// WithBackoff replaces the whole backoff setting.
func WithBackoff(b Backoff) Option {
	return func(o *JobOptions) { o.Backoff = b }
}

func WithRetainCompleted(n int) Option {
	return func(o *JobOptions) { o.RetainCompleted = n }
}

func WithRetainFailed(n int) Option {
	return func(o *JobOptions) { o.RetainFailed = n }
}

func WithPriority(p Priority) Option {
	return func(o *JobOptions) { o.Priority = p }
}

// WithDelay keeps the job in the delayed set for d before it becomes waiting.
func WithDelay(d time.Duration) Option {
	return func(o *JobOptions) { o.Delay = d }
}

// Merge applies opts over base key by key.
func Merge(base JobOptions, opts ...Option) JobOptions {
	merged := base
	for _, opt := range opts {
		if opt != nil {
			opt(&merged)
		}
	}
	return merged
}
