package services

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"play-session-system/models"
)

func newGroupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := NewGroupService(db)

	app := newHandlerApp(func(app *fiber.App) {
		app.Post("/groups", svc.CreateGroup)
		app.Get("/groups", svc.GetUserGroups)
		app.Post("/groups/join", svc.JoinGroup)
		app.Get("/groups/:id", svc.GetGroup)
		app.Post("/groups/:id/leave", svc.LeaveGroup)
		app.Post("/groups/:id/invite-code", svc.RegenerateInviteCode)
		app.Get("/groups/:id/leaderboard", svc.GetGroupLeaderboard)
	})
	return app, db
}

func TestCreateGroupMakesCreatorMember(t *testing.T) {
	app, db := newGroupApp(t)

	status, body := doJSON(t, app, "POST", "/groups", "alice",
		fiber.Map{"name": "friday crew"})
	require.Equal(t, fiber.StatusOK, status)

	group := body["group"].(map[string]interface{})
	assert.Equal(t, "friday crew", group["name"])
	assert.NotEmpty(t, group["invite_code"])

	var member models.GroupMember
	require.NoError(t, db.Where("group_id = ? AND user_id = ?",
		group["id"], "alice").First(&member).Error)
}

func TestJoinGroupByInviteCode(t *testing.T) {
	app, db := newGroupApp(t)
	group := seedGroup(t, db, "alice")

	status, body := doJSON(t, app, "POST", "/groups/join", "bob",
		fiber.Map{"invite_code": group.InviteCode})
	require.Equal(t, fiber.StatusOK, status)
	joined := body["group"].(map[string]interface{})
	assert.Equal(t, group.ID, joined["id"])

	status, body = doJSON(t, app, "POST", "/groups/join", "bob",
		fiber.Map{"invite_code": group.InviteCode})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, body["error"], "already a member")

	status, _ = doJSON(t, app, "POST", "/groups/join", "carol",
		fiber.Map{"invite_code": "NOPE"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestLeaveGroupKeepsGroupWhileMembersRemain(t *testing.T) {
	app, db := newGroupApp(t)
	group := seedGroup(t, db, "alice", "bob")
	require.NoError(t, db.Create(&models.EloScore{
		GroupID: group.ID, UserID: "bob", Elo: 1520,
	}).Error)

	status, _ := doJSON(t, app, "POST", "/groups/"+group.ID+"/leave", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)

	// bob's membership and rating are gone, the group survives
	var scoreCount int64
	require.NoError(t, db.Model(&models.EloScore{}).
		Where("group_id = ? AND user_id = ?", group.ID, "bob").
		Count(&scoreCount).Error)
	assert.Zero(t, scoreCount)
	require.NoError(t, db.First(&models.Group{}, "id = ?", group.ID).Error)

	status, _ = doJSON(t, app, "POST", "/groups/"+group.ID+"/leave", "bob", nil)
	assert.Equal(t, fiber.StatusForbidden, status, "leaving twice is a non-member call")
}

func TestLastMemberLeavingTearsDownGroup(t *testing.T) {
	app, db := newGroupApp(t)
	group := seedGroup(t, db, "alice")
	session := seedSession(t, db, group.ID, "alice")

	now := time.Now()
	match := models.Match{
		ID: "m-1", PlaySessionID: session.ID,
		StartedAt: now, EndedAt: &now, MatchSize: 2,
	}
	require.NoError(t, db.Create(&match).Error)
	require.NoError(t, db.Create(&models.MatchParticipant{
		MatchID: match.ID, UserID: "alice", Team: 0,
	}).Error)
	require.NoError(t, db.Create(&models.EloScore{
		GroupID: group.ID, UserID: "alice", Elo: 1520,
	}).Error)

	status, _ := doJSON(t, app, "POST", "/groups/"+group.ID+"/leave", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)

	for _, probe := range []struct {
		name  string
		model interface{}
	}{
		{"group", &models.Group{}},
		{"session", &models.PlaySession{}},
		{"session participant", &models.PlaySessionParticipant{}},
		{"match", &models.Match{}},
		{"match participant", &models.MatchParticipant{}},
		{"elo score", &models.EloScore{}},
	} {
		var count int64
		require.NoError(t, db.Model(probe.model).Count(&count).Error)
		assert.Zero(t, count, "leftover %s rows after teardown", probe.name)
	}
}

func TestGetUserGroups(t *testing.T) {
	app, db := newGroupApp(t)
	seedGroup(t, db, "alice")
	seedGroup(t, db, "alice", "bob")
	seedGroup(t, db, "carol")

	status, body := doJSON(t, app, "GET", "/groups", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["groups"], 2)

	status, body = doJSON(t, app, "GET", "/groups", "nobody", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["groups"], 0)
}

func TestRegenerateInviteCodeInvalidatesOldOne(t *testing.T) {
	app, db := newGroupApp(t)
	group := seedGroup(t, db, "alice")
	oldCode := group.InviteCode

	status, body := doJSON(t, app, "POST", "/groups/"+group.ID+"/invite-code", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	newCode := body["invite_code"].(string)
	assert.NotEqual(t, oldCode, newCode)

	status, _ = doJSON(t, app, "POST", "/groups/join", "bob",
		fiber.Map{"invite_code": oldCode})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = doJSON(t, app, "POST", "/groups/join", "bob",
		fiber.Map{"invite_code": newCode})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestGroupLeaderboardOrdering(t *testing.T) {
	app, db := newGroupApp(t)
	group := seedGroup(t, db, "alice", "bob", "carol")

	require.NoError(t, db.Create(&[]models.EloScore{
		{GroupID: group.ID, UserID: "alice", Elo: 1480, GamesWon: 1, GamesLost: 2, TotalGames: 3},
		{GroupID: group.ID, UserID: "bob", Elo: 1560, GamesWon: 3, GamesLost: 1, TotalGames: 4},
		{GroupID: group.ID, UserID: "carol", Elo: 1500},
	}).Error)

	status, body := doJSON(t, app, "GET", "/groups/"+group.ID+"/leaderboard", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)

	entries := body["leaderboard"].([]interface{})
	require.Len(t, entries, 3)

	first := entries[0].(map[string]interface{})
	assert.Equal(t, "bob", first["user_id"])
	assert.Equal(t, "75.0", first["win_percentage"])

	last := entries[2].(map[string]interface{})
	assert.Equal(t, "alice", last["user_id"])
	assert.Equal(t, "33.3", last["win_percentage"])

	unrated := entries[1].(map[string]interface{})
	assert.Equal(t, "0.0", unrated["win_percentage"])

	status, _ = doJSON(t, app, "GET", "/groups/"+group.ID+"/leaderboard", "mallory", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}
