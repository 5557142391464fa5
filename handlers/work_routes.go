// handlers/work_routes.go
package handlers

import (
	"log/slog"
	"strconv"

	"reward-engine/middleware"
	"reward-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWorkRoutes(app *fiber.App, workService *services.WorkService, logger *slog.Logger) {
	work := app.Group("/work", middleware.UserContextMiddleware(logger))

	work.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(workService.Jobs())
	})

	work.Post("/job", func(c *fiber.Ctx) error {
		var req struct {
			JobID string `json:"job_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_json")
		}
		job, err := workService.AssignJob(c.UserContext(), middleware.UserID(c), req.JobID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(job)
	})

	work.Post("/claim", func(c *fiber.Ctx) error {
		res, err := workService.ClaimWorkShift(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}

		switch {
		case res.OK:
			return c.JSON(res)
		case res.Reason == services.ReasonCooldown:
			retryMs := res.RetryAfterMs()
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt((retryMs+999)/1000, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"ok":             false,
				"reason":         res.Reason,
				"retry_after_ms": retryMs,
			})
		default:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"ok":     false,
				"reason": res.Reason,
			})
		}
	})
}
