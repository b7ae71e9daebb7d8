package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postlater/internal/adapter"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/service"
)

var errInvalidID = errors.New("invalid id")

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return int64(id), nil
}

// kindFromPath maps the plural collection name in a route to an item kind.
func kindFromPath(collection string) (models.ItemKind, bool) {
	switch collection {
	case "posts":
		return models.KindPost, true
	case "threads":
		return models.KindThread, true
	case "boosts":
		return models.KindBoost, true
	}
	return "", false
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, errInvalidID), errors.Is(err, service.ErrUnknownItemKind):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, service.ErrAccountNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrLeaseConflict),
		errors.Is(err, service.ErrTerminalItem),
		errors.Is(err, service.ErrThreadedPost),
		errors.Is(err, service.ErrThreadAlreadyComplete),
		errors.Is(err, service.ErrEmptyThread),
		errors.Is(err, service.ErrAlreadyQueued),
		errors.Is(err, service.ErrNotQueued),
		errors.Is(err, service.ErrBoostNotDue):
		return fiber.StatusConflict
	case errors.Is(err, adapter.ErrUnsupportedAccountType):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, adapter.ErrNotAuthenticated):
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
