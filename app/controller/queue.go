package controller

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-mailer/app/dto"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
)

// QueueAdmin is the administration surface of the email queue.
type QueueAdmin interface {
	GetStats(ctx context.Context) (queue.Stats, error)
	PauseQueue(ctx context.Context) error
	ResumeQueue(ctx context.Context) error
	ClearFailedJobs(ctx context.Context) (int, error)
	FailedJobs(ctx context.Context, offset int64, limit int64) ([]*queue.Job, error)
	Job(ctx context.Context, id string) (*queue.Job, error)
}

type QueueController struct {
	queue QueueAdmin
}

func NewQueueController(queue QueueAdmin) *QueueController {
	return &QueueController{queue: queue}
}

func (c *QueueController) Stats(ctx echo.Context) error {
	stats, err := c.queue.GetStats(ctx.Request().Context())
	if err != nil {
		return queueError(ctx, err, "failed to read queue stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (c *QueueController) Pause(ctx echo.Context) error {
	if err := c.queue.PauseQueue(ctx.Request().Context()); err != nil {
		return queueError(ctx, err, "failed to pause queue")
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"paused": true})
}

func (c *QueueController) Resume(ctx echo.Context) error {
	if err := c.queue.ResumeQueue(ctx.Request().Context()); err != nil {
		return queueError(ctx, err, "failed to resume queue")
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"paused": false})
}

func (c *QueueController) ClearFailed(ctx echo.Context) error {
	n, err := c.queue.ClearFailedJobs(ctx.Request().Context())
	if err != nil {
		return queueError(ctx, err, "failed to clear failed jobs")
	}
	return ctx.JSON(http.StatusOK, map[string]int{"cleared": n})
}

// Failed lists retained failed jobs. Query: offset (default 0), limit
// (default 50, max 500).
func (c *QueueController) Failed(ctx echo.Context) error {
	offset, limit := int64(0), int64(50)
	if err := echo.QueryParamsBinder(ctx).
		Int64("offset", &offset).
		Int64("limit", &limit).
		BindError(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "offset and limit must be integers"})
	}
	if offset < 0 || limit < 1 || limit > 500 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "offset must be >= 0 and limit between 1 and 500"})
	}

	jobs, err := c.queue.FailedJobs(ctx.Request().Context(), offset, limit)
	if err != nil {
		return queueError(ctx, err, "failed to list failed jobs")
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"jobs": dto.NewJobViews(jobs)})
}

func (c *QueueController) Job(ctx echo.Context) error {
	job, err := c.queue.Job(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return queueError(ctx, err, "failed to load job")
	}
	return ctx.JSON(http.StatusOK, dto.NewJobView(job))
}
