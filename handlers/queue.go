// handlers/queue.go
package handlers

import (
	"wiki-battle-system/middleware"
	"wiki-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupQueueRoutes(app *fiber.App, queueService *services.QueueService) {
	// Attached per route: a group at "/" would drag the user-context
	// requirement onto the public poll endpoint too.
	userCtx := middleware.UserContextMiddleware()

	app.Post("/queue/join", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			DifficultyHint string `json:"difficulty_hint"`
			Ranked         bool   `json:"ranked"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c, err)
		}

		entry, err := queueService.Join(c.Context(), userID, req.DifficultyHint, req.Ranked)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"queue_entry": entry})
	})

	app.Post("/queue/cancel", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		if err := queueService.Cancel(c.Context(), userID); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "queue entry cancelled"})
	})

	// Poll endpoint: pairing is evaluated lazily here, so clients poll this
	// until they come back matched.
	app.Get("/queue/status/:user_id", func(c *fiber.Ctx) error {
		status, err := queueService.Poll(c.Context(), c.Params("user_id"))
		if err != nil {
			return fail(c, err)
		}

		resp := fiber.Map{
			"in_queue": status.InQueue,
			"matched":  status.Matched,
		}
		if status.InQueue && !status.Matched {
			resp["wait_time"] = status.WaitSec
		}
		if status.Match != nil {
			resp["match"] = status.Match
		}
		return c.JSON(resp)
	})
}
