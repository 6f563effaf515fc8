// services/session_service.go
package services

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"play-session-system/models"
)

// SessionService orchestrates the play-session lifecycle: create, join,
// invite, leave, spectator toggling, heartbeat and termination.
type SessionService struct {
	DB    *gorm.DB
	Hub   *Hub
	locks *keyedMutex
}

func NewSessionService(db *gorm.DB, hub *Hub) *SessionService {
	return &SessionService{DB: db, Hub: hub, locks: newKeyedMutex()}
}

func (s *SessionService) loadSession(sessionID string) (*models.PlaySession, error) {
	if sessionID == "" {
		return nil, declined(fiber.StatusBadRequest, "play session ID is required")
	}
	var session models.PlaySession
	if err := s.DB.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, declined(fiber.StatusNotFound, "play session not found")
		}
		return nil, err
	}
	return &session, nil
}

func (s *SessionService) requireMember(groupID, userID string) error {
	var member models.GroupMember
	err := s.DB.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return declined(fiber.StatusForbidden, "not a member of this group")
	}
	return err
}

// CreateSession opens a session for a group; the creator becomes host and
// joins as a non-spectator participant.
func (s *SessionService) CreateSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		GroupID string `json:"group_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}
	if req.GroupID == "" {
		return replyErr(c, declined(fiber.StatusBadRequest, "group ID is required"))
	}

	if err := s.requireMember(req.GroupID, userID); err != nil {
		return replyErr(c, err)
	}

	now := time.Now()
	session := models.PlaySession{
		ID:             uuid.NewString(),
		GroupID:        req.GroupID,
		HostID:         userID,
		CreatedAt:      now,
		HostLastSeenAt: now,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return tx.Create(&models.PlaySessionParticipant{
			PlaySessionID: session.ID,
			UserID:        userID,
			IsSpectator:   false,
			JoinedAt:      now,
		}).Error
	})
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "play_session": session})
}

// JoinSession adds the caller as a participant. The participant unique
// index makes a duplicate join a clean state-conflict instead of a second
// row.
func (s *SessionService) JoinSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	username, _ := c.Locals("username").(string)
	sessionID := c.Params("id")

	session, err := s.loadSession(sessionID)
	if err != nil {
		return replyErr(c, err)
	}
	if session.EndedAt != nil {
		return replyErr(c, declined(fiber.StatusConflict, "play session has ended"))
	}
	if err := s.requireMember(session.GroupID, userID); err != nil {
		return replyErr(c, err)
	}

	participant := models.PlaySessionParticipant{
		PlaySessionID: session.ID,
		UserID:        userID,
		IsSpectator:   false,
		JoinedAt:      time.Now(),
	}
	if err := s.DB.Create(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return replyErr(c, declined(fiber.StatusConflict, "already a participant in this play session"))
		}
		return replyErr(c, err)
	}

	s.Hub.BroadcastToSession(session.ID, SSEEvent{
		Type: EventPlayerJoined,
		Data: fiber.Map{"user_id": userID, "username": username},
	})

	return c.JSON(fiber.Map{"success": true})
}

// LeaveSession removes a non-host participant. The host must end the
// session instead.
func (s *SessionService) LeaveSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	username, _ := c.Locals("username").(string)
	sessionID := c.Params("id")

	session, err := s.loadSession(sessionID)
	if err != nil {
		return replyErr(c, err)
	}
	if session.HostID == userID {
		return replyErr(c, declined(fiber.StatusConflict, "host cannot leave, end the session instead"))
	}

	res := s.DB.Where("play_session_id = ? AND user_id = ?", session.ID, userID).
		Delete(&models.PlaySessionParticipant{})
	if res.Error != nil {
		return replyErr(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return replyErr(c, declined(fiber.StatusNotFound, "not a participant in this play session"))
	}

	s.Hub.BroadcastToSession(session.ID, SSEEvent{
		Type: EventPlayerLeft,
		Data: fiber.Map{"user_id": userID, "username": username},
	})

	return c.JSON(fiber.Map{"success": true})
}

// InviteToSession bulk-adds group members as non-spectator participants.
// Host only; members already in the session are skipped.
func (s *SessionService) InviteToSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sessionID := c.Params("id")

	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}
	if len(req.UserIDs) == 0 {
		return replyErr(c, declined(fiber.StatusBadRequest, "user IDs are required"))
	}

	session, err := s.loadSession(sessionID)
	if err != nil {
		return replyErr(c, err)
	}
	if session.HostID != userID {
		return replyErr(c, declined(fiber.StatusForbidden, "only the host can invite players"))
	}
	if session.EndedAt != nil {
		return replyErr(c, declined(fiber.StatusConflict, "play session has ended"))
	}

	var invited []string
	now := time.Now()
	for _, targetID := range req.UserIDs {
		if err := s.requireMember(session.GroupID, targetID); err != nil {
			var d *DeclinedError
			if errors.As(err, &d) {
				return replyErr(c, declined(fiber.StatusBadRequest, "user "+targetID+" is not a member of this group"))
			}
			return replyErr(c, err)
		}

		err := s.DB.Create(&models.PlaySessionParticipant{
			PlaySessionID: session.ID,
			UserID:        targetID,
			IsSpectator:   false,
			JoinedAt:      now,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue // already in the session
		}
		if err != nil {
			return replyErr(c, err)
		}
		invited = append(invited, targetID)

		s.Hub.BroadcastToSession(session.ID, SSEEvent{
			Type: EventSessionInvite,
			Data: fiber.Map{"user_id": targetID},
		})
	}

	return c.JSON(fiber.Map{"success": true, "invited": invited})
}

// SetSpectator toggles a participant's spectator flag. Host only, and the
// host can never be benched.
func (s *SessionService) SetSpectator(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sessionID := c.Params("id")

	var req struct {
		UserID      string `json:"user_id"`
		IsSpectator bool   `json:"is_spectator"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}
	if req.UserID == "" {
		return replyErr(c, declined(fiber.StatusBadRequest, "user ID is required"))
	}

	session, err := s.loadSession(sessionID)
	if err != nil {
		return replyErr(c, err)
	}
	if session.HostID != userID {
		return replyErr(c, declined(fiber.StatusForbidden, "only the host can set spectator status"))
	}
	if session.EndedAt != nil {
		return replyErr(c, declined(fiber.StatusConflict, "play session has ended"))
	}
	if req.UserID == session.HostID {
		return replyErr(c, declined(fiber.StatusConflict, "host cannot be a spectator"))
	}

	res := s.DB.Model(&models.PlaySessionParticipant{}).
		Where("play_session_id = ? AND user_id = ?", session.ID, req.UserID).
		Update("is_spectator", req.IsSpectator)
	if res.Error != nil {
		return replyErr(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return replyErr(c, declined(fiber.StatusNotFound, "not a participant in this play session"))
	}

	return c.JSON(fiber.Map{"success": true})
}

// EndSession terminates a session. Host only; ending twice is a
// state-conflict, never a second broadcast.
func (s *SessionService) EndSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	session, err := s.loadSession(c.Params("id"))
	if err != nil {
		return replyErr(c, err)
	}
	if session.HostID != userID {
		return replyErr(c, declined(fiber.StatusForbidden, "only the host can end the play session"))
	}

	if err := s.endSession(session, ""); err != nil {
		return replyErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// endSession is the single termination path, shared with the reaper. The
// conditional update makes it idempotent: whoever flips ended_at first owns
// the broadcast, any concurrent attempt gets a state-conflict. An open
// match left in the session is cancelled alongside, so no match outlives
// its session unresolved.
func (s *SessionService) endSession(session *models.PlaySession, reason string) error {
	unlock := s.locks.Lock(session.ID)
	defer unlock()

	now := time.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PlaySession{}).
			Where("id = ? AND ended_at IS NULL", session.ID).
			Update("ended_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return declined(fiber.StatusConflict, "play session already ended")
		}

		return tx.Model(&models.Match{}).
			Where("play_session_id = ? AND ended_at IS NULL AND cancelled = ?", session.ID, false).
			Updates(map[string]interface{}{"cancelled": true, "ended_at": now}).Error
	})
	if err != nil {
		return err
	}

	data := fiber.Map{"play_session_id": session.ID}
	if reason != "" {
		data["reason"] = reason
	}
	s.Hub.BroadcastToSession(session.ID, SSEEvent{Type: EventSessionEnded, Data: data})

	return nil
}

// Heartbeat refreshes the host-liveness timestamp. Cheap, frequent and
// idempotent; a non-host caller is a no-op success.
func (s *SessionService) Heartbeat(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	session, err := s.loadSession(c.Params("id"))
	if err != nil {
		return replyErr(c, err)
	}

	if session.HostID == userID && session.EndedAt == nil {
		err := s.DB.Model(&models.PlaySession{}).
			Where("id = ?", session.ID).
			Update("host_last_seen_at", time.Now()).Error
		if err != nil {
			return replyErr(c, err)
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetSession returns a session with its participants.
func (s *SessionService) GetSession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	session, err := s.loadSession(c.Params("id"))
	if err != nil {
		return replyErr(c, err)
	}
	if err := s.requireMember(session.GroupID, userID); err != nil {
		return replyErr(c, err)
	}

	var participants []models.PlaySessionParticipant
	if err := s.DB.Where("play_session_id = ?", session.ID).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"play_session": session,
		"participants": participants,
		"is_host":      session.HostID == userID,
	})
}

// GetActiveSessions lists a group's sessions that have not ended.
func (s *SessionService) GetActiveSessions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	groupID := c.Params("id")

	if err := s.requireMember(groupID, userID); err != nil {
		return replyErr(c, err)
	}

	var sessions []models.PlaySession
	if err := s.DB.Where("group_id = ? AND ended_at IS NULL", groupID).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "play_sessions": sessions})
}
