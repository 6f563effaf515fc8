package handlers

import (
	"play-session-system/middleware"
	"play-session-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGroupRoutes(app *fiber.App, groupService *services.GroupService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/groups", groupService.CreateGroup)
	secured.Get("/groups", groupService.GetUserGroups)
	secured.Post("/groups/join", groupService.JoinGroup)
	secured.Get("/groups/:id", groupService.GetGroup)
	secured.Post("/groups/:id/leave", groupService.LeaveGroup)
	secured.Post("/groups/:id/invite-code/regenerate", groupService.RegenerateInviteCode)
	secured.Get("/groups/:id/leaderboard", groupService.GetGroupLeaderboard)
}
