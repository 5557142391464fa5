// handlers/vault_routes.go
package handlers

import (
	"log/slog"

	"reward-engine/middleware"
	"reward-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupVaultRoutes(app *fiber.App, vaultService *services.VaultService, logger *slog.Logger) {
	vault := app.Group("/vault", middleware.UserContextMiddleware(logger))

	type amountReq struct {
		Amount int64 `json:"amount"`
	}

	vault.Post("/deposit", func(c *fiber.Ctx) error {
		var req amountReq
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_json")
		}
		res, err := vaultService.Deposit(c.UserContext(), middleware.UserID(c), req.Amount)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	vault.Post("/withdraw", func(c *fiber.Ctx) error {
		var req amountReq
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_json")
		}
		res, err := vaultService.Withdraw(c.UserContext(), middleware.UserID(c), req.Amount)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	vault.Post("/upgrade", func(c *fiber.Ctx) error {
		req := struct {
			Count int `json:"count"`
		}{Count: 1}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid_json")
			}
		}
		res, err := vaultService.PurchaseUpgrade(c.UserContext(), middleware.UserID(c), req.Count)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	vault.Get("/quote", func(c *fiber.Ctx) error {
		quote, err := vaultService.Quote(c.UserContext(), middleware.UserID(c), c.QueryInt("count", 1))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(quote)
	})
}
