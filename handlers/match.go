package handlers

import (
	"play-session-system/middleware"
	"play-session-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService, sseService *services.SSEService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/play-sessions/:id/matches", matchService.StartMatch)
	secured.Get("/play-sessions/:id/matches/active", matchService.GetActiveMatch)

	secured.Get("/matches/:id", matchService.GetMatch)
	secured.Post("/matches/:id/end", matchService.EndMatch)
	secured.Post("/matches/:id/cancel", matchService.CancelMatch)
	secured.Post("/matches/:id/penalize", matchService.PenalizePlayer)

	// Long-lived SSE stream scoped to the match
	secured.Get("/matches/:id/stream", sseService.StreamMatch)
}
