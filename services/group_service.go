// services/group_service.go
package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"play-session-system/models"
)

// GroupService handles group membership: creation, invite-code joins, and
// the cascading teardown when the last member leaves.
type GroupService struct {
	DB *gorm.DB
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db}
}

func generateInviteCode() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return strings.ToUpper(hex.EncodeToString(buf))
}

func (s *GroupService) requireMember(groupID, userID string) error {
	var member models.GroupMember
	err := s.DB.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return declined(fiber.StatusForbidden, "not a member of this group")
	}
	return err
}

// CreateGroup opens a group with a fresh invite code; the creator becomes
// its first member.
func (s *GroupService) CreateGroup(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}

	now := time.Now()
	group := models.Group{
		ID:         uuid.NewString(),
		InviteCode: generateInviteCode(),
		CreatedBy:  userID,
		CreatedAt:  now,
	}
	if req.Name != "" {
		group.Name = &req.Name
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		return tx.Create(&models.GroupMember{
			GroupID:  group.ID,
			UserID:   userID,
			JoinedAt: now,
		}).Error
	})
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "group": group})
}

// JoinGroup adds the caller to the group behind an invite code.
func (s *GroupService) JoinGroup(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}
	if req.InviteCode == "" {
		return replyErr(c, declined(fiber.StatusBadRequest, "invite code is required"))
	}

	var group models.Group
	err := s.DB.Where("invite_code = ?", req.InviteCode).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return replyErr(c, declined(fiber.StatusNotFound, "invalid invite code"))
	}
	if err != nil {
		return replyErr(c, err)
	}

	err = s.DB.Create(&models.GroupMember{
		GroupID:  group.ID,
		UserID:   userID,
		JoinedAt: time.Now(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return replyErr(c, declined(fiber.StatusConflict, "already a member of this group"))
	}
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "group": group})
}

// LeaveGroup drops the caller's membership and rating. When the last
// member leaves, the group and everything scoped to it — sessions,
// participants, matches, ratings — is torn down.
func (s *GroupService) LeaveGroup(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	groupID := c.Params("id")

	if err := s.requireMember(groupID, userID); err != nil {
		return replyErr(c, err)
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			Delete(&models.EloScore{}).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ?", groupID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		return s.teardownGroup(tx, groupID)
	})
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (s *GroupService) teardownGroup(tx *gorm.DB, groupID string) error {
	var sessionIDs []string
	if err := tx.Model(&models.PlaySession{}).
		Where("group_id = ?", groupID).
		Pluck("id", &sessionIDs).Error; err != nil {
		return err
	}

	if len(sessionIDs) > 0 {
		var matchIDs []string
		if err := tx.Model(&models.Match{}).
			Where("play_session_id IN ?", sessionIDs).
			Pluck("id", &matchIDs).Error; err != nil {
			return err
		}
		if len(matchIDs) > 0 {
			if err := tx.Where("match_id IN ?", matchIDs).
				Delete(&models.MatchParticipant{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", matchIDs).Delete(&models.Match{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("play_session_id IN ?", sessionIDs).
			Delete(&models.PlaySessionParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", sessionIDs).Delete(&models.PlaySession{}).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("group_id = ?", groupID).Delete(&models.EloScore{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Group{}, "id = ?", groupID).Error
}

// GetUserGroups lists the caller's groups, most recently joined first.
func (s *GroupService) GetUserGroups(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	type groupRow struct {
		models.Group
		JoinedAt time.Time `json:"joined_at"`
	}
	var rows []groupRow
	err := s.DB.Model(&models.GroupMember{}).
		Select("groups.*, group_members.joined_at AS joined_at").
		Joins("JOIN groups ON groups.id = group_members.group_id").
		Where("group_members.user_id = ?", userID).
		Order("group_members.joined_at DESC").
		Scan(&rows).Error
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "groups": rows})
}

// GetGroup returns one group; members only.
func (s *GroupService) GetGroup(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	groupID := c.Params("id")

	var group models.Group
	err := s.DB.First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return replyErr(c, declined(fiber.StatusNotFound, "group not found"))
	}
	if err != nil {
		return replyErr(c, err)
	}
	if err := s.requireMember(groupID, userID); err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "group": group})
}

// RegenerateInviteCode rotates the invite code; any member may do so.
func (s *GroupService) RegenerateInviteCode(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	groupID := c.Params("id")

	if err := s.requireMember(groupID, userID); err != nil {
		return replyErr(c, err)
	}

	code := generateInviteCode()
	err := s.DB.Model(&models.Group{}).
		Where("id = ?", groupID).
		Update("invite_code", code).Error
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "invite_code": code})
}

// LeaderboardEntry is one player's standing in a group.
type LeaderboardEntry struct {
	UserID        string     `json:"user_id"`
	Elo           int        `json:"elo"`
	GamesWon      int        `json:"games_won"`
	GamesLost     int        `json:"games_lost"`
	GamesTied     int        `json:"games_tied"`
	TotalGames    int        `json:"total_games"`
	CurrentStreak int        `json:"current_streak"`
	HighestStreak int        `json:"highest_streak"`
	LastPlayedAt  *time.Time `json:"last_played_at,omitempty"`
	WinPercentage string     `json:"win_percentage"`
}

// GetGroupLeaderboard returns the group's ratings ordered by Elo.
func (s *GroupService) GetGroupLeaderboard(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	groupID := c.Params("id")

	if err := s.requireMember(groupID, userID); err != nil {
		return replyErr(c, err)
	}

	var scores []models.EloScore
	err := s.DB.Where("group_id = ?", groupID).
		Order("elo DESC").
		Find(&scores).Error
	if err != nil {
		return replyErr(c, err)
	}

	entries := make([]LeaderboardEntry, 0, len(scores))
	for _, score := range scores {
		winPct := "0.0"
		if score.TotalGames > 0 {
			winPct = fmt.Sprintf("%.1f", float64(score.GamesWon)/float64(score.TotalGames)*100)
		}
		entries = append(entries, LeaderboardEntry{
			UserID:        score.UserID,
			Elo:           score.Elo,
			GamesWon:      score.GamesWon,
			GamesLost:     score.GamesLost,
			GamesTied:     score.GamesTied,
			TotalGames:    score.TotalGames,
			CurrentStreak: score.CurrentStreak,
			HighestStreak: score.HighestStreak,
			LastPlayedAt:  score.LastPlayedAt,
			WinPercentage: winPct,
		})
	}

	return c.JSON(fiber.Map{"success": true, "leaderboard": entries})
}
