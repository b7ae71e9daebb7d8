package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postlater/internal/service"
)

type JobsHandler struct {
	jf service.JobFinder
}

func NewJobsHandler(jf service.JobFinder) *JobsHandler {
	return &JobsHandler{jf: jf}
}

// ListJobs reports the work due at ?now= (RFC 3339), defaulting to the current time.
func (h *JobsHandler) ListJobs(c *fiber.Ctx) error {
	now := time.Now()
	if raw := c.Query("now"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "now must be an RFC 3339 timestamp",
			})
		}
		now = t
	}

	jobs, err := h.jf.FindJobs(c.Context(), now)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(jobs)
}
