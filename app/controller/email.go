package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-mailer/app/dto"
	"github.com/vibast-solutions/ms-go-mailer/app/entity"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"github.com/vibast-solutions/ms-go-mailer/app/repository"
)

// Enqueuer is the producer side of the email queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload queue.EmailPayload, opts ...queue.Option) (*queue.JobHandle, error)
}

// HistoryFinder looks up the delivery history of a job.
type HistoryFinder interface {
	Find(ctx context.Context, jobID string) (*entity.EmailHistory, error)
}

type EmailController struct {
	queue   Enqueuer
	history HistoryFinder
}

// NewEmailController constructs the HTTP email controller. history may be
// nil when no history store is configured.
func NewEmailController(queue Enqueuer, history HistoryFinder) *EmailController {
	return &EmailController{queue: queue, history: history}
}

// Send validates and enqueues an email. It returns as soon as the job is
// persisted.
func (c *EmailController) Send(ctx echo.Context) error {
	req, err := dto.FromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	handle, err := c.queue.Enqueue(ctx.Request().Context(), req.Payload(), req.QueueOptions()...)
	if err != nil {
		return queueError(ctx, err, "failed to queue email")
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{"message": "email accepted", "job_id": handle.ID})
}

// History returns the stored delivery history of a job.
func (c *EmailController) History(ctx echo.Context) error {
	if c.history == nil {
		return ctx.JSON(http.StatusNotImplemented, map[string]string{"error": "email history is not enabled"})
	}

	h, err := c.history.Find(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "email history not found"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load email history"})
	}
	return ctx.JSON(http.StatusOK, h)
}

// queueError maps queue errors to HTTP responses.
func queueError(ctx echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, queue.ErrInvalidPayload), errors.Is(err, queue.ErrInvalidOptions):
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, queue.ErrJobNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	case errors.Is(err, queue.ErrQueueUnavailable):
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	default:
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}
