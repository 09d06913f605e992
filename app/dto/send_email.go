package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrMissingRecipient = errors.New("to is required")
	ErrInvalidRecipient = errors.New("to must be a valid email address")
	ErrInvalidOptions   = errors.New("invalid options")
)

// SendEmailRequest is the body of an enqueue call. Options only carry the
// keys the caller wants to override.
type SendEmailRequest struct {
	To      string        `json:"to"`
	Subject string        `json:"subject"`
	HTML    string        `json:"html"`
	Text    string        `json:"text"`
	Options *EmailOptions `json:"options,omitempty"`
}

type EmailOptions struct {
	Attempts        *int            `json:"attempts,omitempty"`
	Backoff         *BackoffOptions `json:"backoff,omitempty"`
	RetainCompleted *int            `json:"retain_completed,omitempty"`
	RetainFailed    *int            `json:"retain_failed,omitempty"`
	Priority        *string         `json:"priority,omitempty"`
	DelayMS         *int64          `json:"delay_ms,omitempty"`
}

type BackoffOptions struct {
	Type    string `json:"type"`
	DelayMS int64  `json:"delay_ms"`
}

// FromEchoContext binds and normalizes a request from Echo.
func FromEchoContext(ctx echo.Context) (SendEmailRequest, error) {
	var req SendEmailRequest
	if err := ctx.Bind(&req); err != nil {
		return SendEmailRequest{}, err
	}
	req.normalize()
	return req, nil
}

// FromStruct converts a gRPC struct with the same shape as the JSON body.
func FromStruct(s *structpb.Struct) (SendEmailRequest, error) {
	var req SendEmailRequest
	if s == nil {
		return req, nil
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return SendEmailRequest{}, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return SendEmailRequest{}, err
	}
	req.normalize()
	return req, nil
}

// Validate checks the recipient. Subject and bodies may be empty.
func (r *SendEmailRequest) Validate() error {
	if r.To == "" {
		return ErrMissingRecipient
	}
	if _, err := mail.ParseAddress(r.To); err != nil {
		return ErrInvalidRecipient
	}
	if r.Options != nil {
		if r.Options.Backoff != nil && r.Options.Backoff.DelayMS < 0 {
			return fmt.Errorf("%w: backoff.delay_ms must not be negative", ErrInvalidOptions)
		}
		if r.Options.DelayMS != nil && *r.Options.DelayMS < 0 {
			return fmt.Errorf("%w: delay_ms must not be negative", ErrInvalidOptions)
		}
	}
	return nil
}

// Payload returns the queue payload.
func (r *SendEmailRequest) Payload() queue.EmailPayload {
	return queue.EmailPayload{To: r.To, Subject: r.Subject, HTML: r.HTML, Text: r.Text}
}

// QueueOptions returns one override per key present in the request.
func (r *SendEmailRequest) QueueOptions() []queue.Option {
	o := r.Options
	if o == nil {
		return nil
	}

	var opts []queue.Option
	if o.Attempts != nil {
		opts = append(opts, queue.WithAttempts(*o.Attempts))
	}
	if o.Backoff != nil {
		opts = append(opts, queue.WithBackoff(queue.Backoff{
			Type:  queue.BackoffType(strings.ToLower(o.Backoff.Type)),
			Delay: time.Duration(o.Backoff.DelayMS) * time.Millisecond,
		}))
	}
	if o.RetainCompleted != nil {
		opts = append(opts, queue.WithRetainCompleted(*o.RetainCompleted))
	}
	if o.RetainFailed != nil {
		opts = append(opts, queue.WithRetainFailed(*o.RetainFailed))
	}
	if o.Priority != nil {
		opts = append(opts, queue.WithPriority(queue.Priority(strings.ToLower(*o.Priority))))
	}
	if o.DelayMS != nil {
		opts = append(opts, queue.WithDelay(time.Duration(*o.DelayMS)*time.Millisecond))
	}
	return opts
}

// normalize trims the recipient and subject. Bodies are kept verbatim.
func (r *SendEmailRequest) normalize() {
	r.To = strings.TrimSpace(r.To)
	r.Subject = strings.TrimSpace(r.Subject)
}
