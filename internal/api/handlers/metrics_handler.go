package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postlater/internal/telemetry"
)

func Metrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
	telemetry.WritePrometheus(c)
	return nil
}
