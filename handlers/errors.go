package handlers

import (
	"errors"

	"reward-engine/services"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service failures onto status codes and stable error codes.
func respondError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, services.ErrStoreUnavailable):
		status, code = fiber.StatusServiceUnavailable, "store_unavailable"
		c.Set(fiber.HeaderRetryAfter, "1")
	case errors.Is(err, services.ErrInvalidAmount):
		status, code = fiber.StatusBadRequest, "invalid_amount"
	case errors.Is(err, services.ErrInvalidConfig):
		status, code = fiber.StatusBadRequest, "invalid_config"
	case errors.Is(err, services.ErrUnknownJob):
		status, code = fiber.StatusNotFound, "unknown_job"
	case errors.Is(err, services.ErrInsufficientFunds):
		status, code = fiber.StatusConflict, "insufficient_funds"
	case errors.Is(err, services.ErrCapacityExceeded):
		status, code = fiber.StatusConflict, "capacity_exceeded"
	case errors.Is(err, services.ErrConflict):
		status, code = fiber.StatusConflict, "conflict"
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func badRequest(c *fiber.Ctx, code string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": code})
}
