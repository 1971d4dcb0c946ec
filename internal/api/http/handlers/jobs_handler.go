package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/queue"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// JobsHandler exposes the retained failed-job set and runtime counters to
// operators.
type JobsHandler struct {
	queue   queue.Queue
	metrics *observability.Metrics
}

// NewJobsHandler constructs handler.
func NewJobsHandler(q queue.Queue, metrics *observability.Metrics) *JobsHandler {
	return &JobsHandler{queue: q, metrics: metrics}
}

// ListFailed GET /ops/jobs/failed.
func (h *JobsHandler) ListFailed(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 50)
	jobs, err := h.queue.ListFailed(c.UserContext(), limit)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.FailedJobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, failedJobResponse(&jobs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetJob GET /ops/jobs/:id.
func (h *JobsHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.queue.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return apperrors.NewNotFound("job", map[string]any{"job_id": c.Params("id")})
		}
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": job})
}

// RequeueFailed POST /ops/jobs/:id/requeue.
func (h *JobsHandler) RequeueFailed(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.queue.RequeueFailed(c.UserContext(), id); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return apperrors.NewNotFound("job", map[string]any{"job_id": id})
		}
		return apperrors.NewConflict(err.Error(), map[string]any{"job_id": id})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"job_id": id, "status": string(queue.JobStatusPending)}})
}

// Metrics GET /ops/metrics.
func (h *JobsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

func failedJobResponse(job *queue.Job) dto.FailedJobResponse {
	return dto.FailedJobResponse{
		ID:           job.ID,
		Type:         string(job.Type),
		Recipient:    job.Recipient,
		AttemptCount: job.AttemptCount,
		MaxAttempts:  job.MaxAttempts,
		LastError:    job.LastError,
		EnqueuedAt:   job.EnqueuedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
