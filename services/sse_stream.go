// services/sse_stream.go
package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"play-session-system/models"
)

// sseKeepAliveInterval spaces the comment pings that keep proxies from
// dropping idle streams.
const sseKeepAliveInterval = 30 * time.Second

// SSEService exposes the event-transport surface: long-lived SSE streams
// registered on the Hub, one per session or match scope.
type SSEService struct {
	DB  *gorm.DB
	Hub *Hub
}

func NewSSEService(db *gorm.DB, hub *Hub) *SSEService {
	return &SSEService{DB: db, Hub: hub}
}

// StreamPlaySession streams all events scoped to a play session to the
// authenticated group member.
func (s *SSEService) StreamPlaySession(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sessionID := c.Params("id")

	var session models.PlaySession
	if err := s.DB.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return replyErr(c, declined(fiber.StatusNotFound, "play session not found"))
		}
		return replyErr(c, err)
	}
	if err := s.requireMember(session.GroupID, userID); err != nil {
		return replyErr(c, err)
	}

	client := s.Hub.Register(userID, sessionID, "")
	return s.stream(c, client)
}

// StreamMatch streams all events scoped to a match.
func (s *SSEService) StreamMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	matchID := c.Params("id")

	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return replyErr(c, declined(fiber.StatusNotFound, "match not found"))
		}
		return replyErr(c, err)
	}
	var session models.PlaySession
	if err := s.DB.First(&session, "id = ?", match.PlaySessionID).Error; err != nil {
		return replyErr(c, err)
	}
	if err := s.requireMember(session.GroupID, userID); err != nil {
		return replyErr(c, err)
	}

	client := s.Hub.Register(userID, "", matchID)
	return s.stream(c, client)
}

func (s *SSEService) requireMember(groupID, userID string) error {
	var member models.GroupMember
	err := s.DB.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return declined(fiber.StatusForbidden, "not a member of this group")
	}
	return err
}

func (s *SSEService) stream(c *fiber.Ctx, client *SSEClient) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	ctx := c.Context()

	// Use fasthttp stream writer (THIS replaces Flush)
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.Hub.Deregister(client.ID)

		ticker := time.NewTicker(sseKeepAliveInterval)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-client.Events():
				if !ok {
					// Hub dropped us (shutdown or dead buffer)
					return
				}
				payload, err := json.Marshal(event.Data)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-ticker.C:
				w.WriteString(": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ctx.Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
