// handlers/progression_routes.go
package handlers

import (
	"log/slog"

	"reward-engine/middleware"
	"reward-engine/models"
	"reward-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(app *fiber.App, progressionService *services.ProgressionService, configCache *services.ScopeConfigCache, logger *slog.Logger) {
	userCtx := middleware.UserContextMiddleware(logger)

	// Gateway-only: the chat gateway reads filters before forwarding events.
	app.Get("/scopes/:scope_id/config", func(c *fiber.Ctx) error {
		return c.JSON(configCache.Get(c.UserContext(), c.Params("scope_id")))
	})

	app.Post("/activity", userCtx, func(c *fiber.Ctx) error {
		var req struct {
			ScopeID       string   `json:"scope_id"`
			ChannelID     string   `json:"channel_id"`
			ContentLength int      `json:"content_length"`
			RoleIDs       []string `json:"role_ids"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_json")
		}
		if req.ScopeID == "" || req.ChannelID == "" {
			return badRequest(c, "scope_and_channel_required")
		}

		res, err := progressionService.AwardActivity(c.UserContext(), services.Activity{
			ScopeID:       req.ScopeID,
			UserID:        middleware.UserID(c),
			ChannelID:     req.ChannelID,
			ContentLength: req.ContentLength,
			RoleIDs:       req.RoleIDs,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(res)
	})

	app.Get("/user/progress", userCtx, func(c *fiber.Ctx) error {
		profile, err := progressionService.Profile(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(profile)
	})

	// Admin endpoints
	admin := app.Group("/admin", userCtx, middleware.RequireRole("admin"))

	admin.Put("/scopes/:scope_id/config", func(c *fiber.Ctx) error {
		var cfg models.ScopeConfig
		if err := c.BodyParser(&cfg); err != nil {
			return badRequest(c, "invalid_json")
		}
		cfg.ScopeID = c.Params("scope_id")

		saved, err := configCache.Update(c.UserContext(), cfg)
		if err != nil {
			return respondError(c, err)
		}
		logger.Info("[CONFIG] admin update", "scope_id", saved.ScopeID, "user_id", middleware.UserID(c))
		return c.JSON(saved)
	})
}
