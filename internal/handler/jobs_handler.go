package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/lesson-engine/internal/service"
)

// JobScheduler is the part of the task scheduler the ops API drives.
type JobScheduler interface {
	Jobs() []service.JobStatus
	RunNow(name string) error
}

type JobsHandler struct {
	scheduler JobScheduler
}

func NewJobsHandler(scheduler JobScheduler) (*JobsHandler, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("job scheduler is required")
	}
	return &JobsHandler{scheduler: scheduler}, nil
}

func RegisterJobRoutes(router fiber.Router, scheduler JobScheduler) error {
	h, err := NewJobsHandler(scheduler)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/jobs", h.ListJobs)
	v1.Post("/jobs/:name/run", h.RunJob)

	return nil
}

type jobResponse struct {
	Name          string     `json:"name"`
	Interval      string     `json:"interval"`
	Running       bool       `json:"running"`
	Runs          uint64     `json:"runs"`
	LastStartedAt *time.Time `json:"lastStartedAt,omitempty"`
	LastDuration  string     `json:"lastDuration,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

func (h *JobsHandler) ListJobs(c *fiber.Ctx) error {
	statuses := h.scheduler.Jobs()
	jobs := make([]jobResponse, 0, len(statuses))
	for _, status := range statuses {
		job := jobResponse{
			Name:          status.Name,
			Interval:      status.Interval.String(),
			Running:       status.Running,
			Runs:          status.Runs,
			LastStartedAt: status.LastStartedAt,
			LastError:     status.LastError,
		}
		if status.LastStartedAt != nil {
			job.LastDuration = status.LastDuration.String()
		}
		jobs = append(jobs, job)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"jobs": jobs,
	})
}

func (h *JobsHandler) RunJob(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.scheduler.RunNow(name); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job":    name,
		"status": "started",
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrJobRunning), errors.Is(err, service.ErrSchedulerInactive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
