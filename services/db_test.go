package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"play-session-system/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Group{},
		&models.GroupMember{},
		&models.PlaySession{},
		&models.PlaySessionParticipant{},
		&models.Match{},
		&models.MatchParticipant{},
		&models.EloScore{},
	))
	return db
}

func seedGroup(t *testing.T, db *gorm.DB, memberIDs ...string) *models.Group {
	t.Helper()

	now := time.Now()
	group := &models.Group{
		ID:         uuid.NewString(),
		InviteCode: uuid.NewString()[:16],
		CreatedBy:  memberIDs[0],
		CreatedAt:  now,
	}
	require.NoError(t, db.Create(group).Error)
	for _, userID := range memberIDs {
		require.NoError(t, db.Create(&models.GroupMember{
			GroupID:  group.ID,
			UserID:   userID,
			JoinedAt: now,
		}).Error)
	}
	return group
}

// seedSession creates an active session hosted by hostID with every given
// user (host included) as a non-spectator participant.
func seedSession(t *testing.T, db *gorm.DB, groupID, hostID string, participantIDs ...string) *models.PlaySession {
	t.Helper()

	now := time.Now()
	session := &models.PlaySession{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		HostID:         hostID,
		CreatedAt:      now,
		HostLastSeenAt: now,
	}
	require.NoError(t, db.Create(session).Error)

	for _, userID := range append([]string{hostID}, participantIDs...) {
		require.NoError(t, db.Create(&models.PlaySessionParticipant{
			PlaySessionID: session.ID,
			UserID:        userID,
			JoinedAt:      now,
		}).Error)
	}
	return session
}

// newHandlerApp builds a fiber app with the gateway user context stubbed
// from request headers, mirroring middleware.UserContextMiddleware.
func newHandlerApp(register func(app *fiber.App)) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User-ID"))
		c.Locals("username", c.Get("X-User-Name"))
		return c.Next()
	})
	register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, userID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func requireDeclined(t *testing.T, err error, status int) {
	t.Helper()
	var d *DeclinedError
	require.ErrorAs(t, err, &d)
	require.Equal(t, status, d.Status)
}
