package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/service"
)

type DispatchHandler struct {
	ds service.Dispatcher
	ts service.ThreadSequencer
	hr repository.AttemptHistoryRepository
}

func NewDispatchHandler(ds service.Dispatcher, ts service.ThreadSequencer, hr repository.AttemptHistoryRepository) *DispatchHandler {
	return &DispatchHandler{ds: ds, ts: ts, hr: hr}
}

func (h *DispatchHandler) respond(c *fiber.Ctx, out *service.Outcome, err error) error {
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *DispatchHandler) DispatchPost(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	out, err := h.ds.DispatchPost(c.Context(), id)
	return h.respond(c, out, err)
}

func (h *DispatchHandler) DispatchThread(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	out, err := h.ts.SendNextPost(c.Context(), id)
	return h.respond(c, out, err)
}

func (h *DispatchHandler) DispatchBoost(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	out, err := h.ds.DispatchBoost(c.Context(), id)
	return h.respond(c, out, err)
}

func (h *DispatchHandler) FollowUpPost(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	out, err := h.ds.FollowUpPost(c.Context(), id)
	return h.respond(c, out, err)
}

// ScheduleRetry serves POST /api/:collection/:id/retry.
func (h *DispatchHandler) ScheduleRetry(c *fiber.Ctx) error {
	kind, ok := kindFromPath(c.Params("collection"))
	if !ok {
		return errorResponse(c, fmt.Errorf("%w: %s", service.ErrUnknownItemKind, c.Params("collection")))
	}
	id, err := paramID(c)
	if err != nil {
		return errorResponse(c, err)
	}
	out, err := h.ds.ScheduleRetry(c.Context(), kind, id)
	return h.respond(c, out, err)
}

func (h *DispatchHandler) History(c *fiber.Ctx) error {
	kind, ok := kindFromPath(c.Params("collection"))
	if !ok {
		return errorResponse(c, fmt.Errorf("%w: %s", service.ErrUnknownItemKind, c.Params("collection")))
	}
	id, err := paramID(c)
	if err != nil {
		return errorResponse(c, err)
	}

	history, err := h.hr.ListByItem(c.Context(), kind, id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"attempts": history,
	})
}
