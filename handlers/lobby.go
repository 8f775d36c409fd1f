// handlers/lobby.go
package handlers

import (
	"wiki-battle-system/middleware"
	"wiki-battle-system/models"
	"wiki-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLobbyRoutes(app *fiber.App, lobbyService *services.LobbyService) {
	app.Get("/lobbies/public", func(c *fiber.Ctx) error {
		lobbies, err := lobbyService.PublicLobbies()
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"lobbies": lobbies})
	})

	app.Get("/lobbies/:code", func(c *fiber.Ctx) error {
		lobby, err := lobbyService.Get(c.Params("code"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"lobby": lobby})
	})

	// Attached per route so the public listing and code lookup stay open.
	userCtx := middleware.UserContextMiddleware()

	app.Post("/lobbies/create", userCtx, func(c *fiber.Ctx) error {
		hostID := c.Locals("user_id").(string)

		type Req struct {
			Race       models.Race `json:"race"`
			Visibility string      `json:"visibility"`
			Ranked     bool        `json:"ranked"`
			Capacity   int         `json:"capacity"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c, err)
		}

		lobby, err := lobbyService.Create(hostID, req.Race, req.Visibility, req.Ranked, req.Capacity)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"lobby": lobby})
	})

	app.Post("/lobbies/:code/join", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		result, err := lobbyService.Join(c.Params("code"), userID)
		if err != nil {
			return fail(c, err)
		}
		if result.Match != nil {
			// Room already started: hand the late joiner the match reference.
			return c.JSON(fiber.Map{
				"started": true,
				"match":   result.Match,
			})
		}
		return c.JSON(fiber.Map{"lobby": result.Lobby})
	})

	app.Post("/lobbies/:code/ready", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		lobby, err := lobbyService.SetReady(c.Params("code"), userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"lobby": lobby})
	})

	app.Post("/lobbies/:code/start", userCtx, func(c *fiber.Ctx) error {
		hostID := c.Locals("user_id").(string)

		match, err := lobbyService.Start(c.Params("code"), hostID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"message": "lobby started",
			"match":   match,
		})
	})

	app.Post("/lobbies/:code/leave", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		lobby, err := lobbyService.Leave(c.Params("code"), userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"lobby": lobby})
	})
}
