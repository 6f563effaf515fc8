package handlers

import (
	"play-session-system/middleware"
	"play-session-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSessionRoutes(app *fiber.App, sessionService *services.SessionService, sseService *services.SSEService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/play-sessions", sessionService.CreateSession)
	secured.Get("/play-sessions/:id", sessionService.GetSession)
	secured.Get("/groups/:id/play-sessions/active", sessionService.GetActiveSessions)

	secured.Post("/play-sessions/:id/join", sessionService.JoinSession)
	secured.Post("/play-sessions/:id/leave", sessionService.LeaveSession)
	secured.Post("/play-sessions/:id/invite", sessionService.InviteToSession)
	secured.Post("/play-sessions/:id/spectator", sessionService.SetSpectator)
	secured.Post("/play-sessions/:id/end", sessionService.EndSession)
	secured.Post("/play-sessions/:id/heartbeat", sessionService.Heartbeat)

	// Long-lived SSE stream scoped to the session
	secured.Get("/play-sessions/:id/stream", sseService.StreamPlaySession)
}
