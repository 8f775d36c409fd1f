// handlers/battle.go
package handlers

import (
	"wiki-battle-system/middleware"
	"wiki-battle-system/models"
	"wiki-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBattleRoutes(app *fiber.App, battleService *services.BattleService, ratingService *services.RatingService) {
	// Attached per route so the public progress and rating reads stay open.
	userCtx := middleware.UserContextMiddleware()

	app.Post("/battles/vs-bot", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			StartTopic    string `json:"start"`
			EndTopic      string `json:"end"`
			Difficulty    string `json:"difficulty"`
			OptimalClicks int    `json:"optimal_clicks"`
			Ranked        bool   `json:"ranked"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c, err)
		}
		if req.StartTopic == "" || req.EndTopic == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "start and end topics are required",
			})
		}

		race := models.Race{
			StartTopic:    req.StartTopic,
			EndTopic:      req.EndTopic,
			Difficulty:    req.Difficulty,
			OptimalClicks: req.OptimalClicks,
		}
		match, err := battleService.CreateBotMatch(userID, race, req.Difficulty, req.Ranked)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"match":          match,
			"bot_difficulty": req.Difficulty,
		})
	})

	app.Post("/battles/:id/update", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			CurrentTopic string  `json:"current_topic"`
			Clicks       int     `json:"clicks"`
			Elapsed      float64 `json:"elapsed"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c, err)
		}

		err := battleService.UpdateProgress(c.Params("id"), userID, req.CurrentTopic, req.Clicks, req.Elapsed)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "progress recorded"})
	})

	// Clients poll this endpoint after completing: the same call that sees
	// both PvP slots finished performs the resolution.
	app.Post("/battles/:id/complete", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			Time   float64  `json:"time"`
			Clicks int      `json:"clicks"`
			Path   []string `json:"path"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c, err)
		}

		result, err := battleService.ReportCompletion(c.Context(), c.Params("id"), userID, req.Time, req.Clicks, req.Path)
		if err != nil {
			return fail(c, err)
		}

		if result.Waiting {
			return c.JSON(fiber.Map{
				"waiting": true,
				"message": "waiting for opponent to finish",
			})
		}

		match := result.Match
		resp := fiber.Map{
			"waiting": false,
			"match":   match,
			"draw":    match.Draw,
		}
		if match.WinnerSlot != 0 {
			winner := match.Slot(match.WinnerSlot)
			if winner.IsBot() {
				resp["winner"] = "bot"
			} else {
				resp["winner"] = winner.UserID
			}
		}
		if result.Caller != nil {
			resp["new_rating"] = result.Caller.Rating
			resp["new_tier"] = result.Caller.Tier()
			if slot := match.SlotOf(userID); slot == 1 && match.P1Delta != nil {
				resp["your_delta"] = *match.P1Delta
			} else if slot == 2 && match.P2Delta != nil {
				resp["your_delta"] = *match.P2Delta
			}
		}
		return c.JSON(resp)
	})

	app.Post("/battles/:id/forfeit", userCtx, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		match, err := battleService.Forfeit(c.Params("id"), userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"message": "match forfeited",
			"match":   match,
		})
	})

	app.Get("/battles/:id/progress", func(c *fiber.Ctx) error {
		match, err := battleService.Get(c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"status":  match.Status,
			"player1": match.P1,
			"player2": match.P2,
			"race":    match.Race,
		})
	})

	app.Get("/users/:user_id/rating", func(c *fiber.Ctx) error {
		rec, err := ratingService.Get(c.Params("user_id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"rating": rec,
			"tier":   rec.Tier(),
		})
	})
}
