// services/match_service.go
package services

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"play-session-system/models"
)

// MatchService orchestrates the match lifecycle inside a session: start,
// complete, cancel and penalize. Selection, balancing and rating math live
// in the pure helpers; this service wires them to the store and the hub.
type MatchService struct {
	DB  *gorm.DB
	Hub *Hub

	locks *keyedMutex // shared with SessionService so end-session and start-match serialize

	randMu sync.Mutex
	rng    *rand.Rand // seedable so selection is reproducible in tests
}

func NewMatchService(db *gorm.DB, hub *Hub, sessions *SessionService) *MatchService {
	return &MatchService{
		DB:    db,
		Hub:   hub,
		locks: sessions.locks,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EloUpdate is one player's rating movement from a completed match.
type EloUpdate struct {
	UserID    string `json:"user_id"`
	EloChange int    `json:"elo_change"`
	NewElo    int    `json:"new_elo"`
}

func (s *MatchService) loadMatch(matchID string) (*models.Match, *models.PlaySession, error) {
	if matchID == "" {
		return nil, nil, declined(fiber.StatusBadRequest, "match ID is required")
	}
	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, declined(fiber.StatusNotFound, "match not found")
		}
		return nil, nil, err
	}
	var session models.PlaySession
	if err := s.DB.First(&session, "id = ?", match.PlaySessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, declined(fiber.StatusNotFound, "play session not found")
		}
		return nil, nil, err
	}
	return &match, &session, nil
}

// StartMatch carves a match out of the session's eligible players.
func (s *MatchService) StartMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	sessionID := c.Params("id")

	var req struct {
		MatchSize int `json:"match_size"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}

	match, err := s.startMatch(userID, sessionID, req.MatchSize)
	if err != nil {
		return replyErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "match": match})
}

func (s *MatchService) startMatch(userID, sessionID string, matchSize int) (*models.Match, error) {
	if sessionID == "" || matchSize == 0 {
		return nil, declined(fiber.StatusBadRequest, "play session ID and match size are required")
	}
	if matchSize%2 != 0 {
		return nil, declined(fiber.StatusBadRequest, "match size must be even for 2 teams")
	}
	if matchSize > MaxMatchSize {
		return nil, declined(fiber.StatusBadRequest, "match size exceeds the supported maximum")
	}

	var session models.PlaySession
	if err := s.DB.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, declined(fiber.StatusNotFound, "play session not found")
		}
		return nil, err
	}
	if session.HostID != userID {
		return nil, declined(fiber.StatusForbidden, "only the host can start a match")
	}
	if session.EndedAt != nil {
		return nil, declined(fiber.StatusConflict, "play session has ended")
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	var match models.Match
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-check under the lock; the session may have ended while we
		// waited for it
		var current models.PlaySession
		if err := tx.First(&current, "id = ? AND ended_at IS NULL", session.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return declined(fiber.StatusConflict, "play session has ended")
			}
			return err
		}

		var active models.Match
		err := tx.Where("play_session_id = ? AND ended_at IS NULL AND cancelled = ?", session.ID, false).
			First(&active).Error
		if err == nil {
			return declined(fiber.StatusConflict, "there is already an active match")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		candidates, scores, err := s.sessionCandidates(tx, &session)
		if err != nil {
			return err
		}

		s.randMu.Lock()
		selected, err := SelectPlayersForMatch(candidates, matchSize, s.rng)
		s.randMu.Unlock()
		if errors.Is(err, ErrInsufficientPlayers) {
			return declined(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return err
		}

		assignment, err := BalanceTeams(selected, matchSize)
		if errors.Is(err, ErrInvalidMatchSize) {
			return declined(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return err
		}

		match = models.Match{
			ID:            uuid.NewString(),
			PlaySessionID: session.ID,
			StartedAt:     time.Now(),
			MatchSize:     matchSize,
			Cancelled:     false,
		}
		if err := tx.Create(&match).Error; err != nil {
			return err
		}

		var rows []models.MatchParticipant
		for team, players := range [][]Player{assignment.Team1, assignment.Team2} {
			for _, p := range players {
				row := models.MatchParticipant{
					MatchID: match.ID,
					UserID:  p.UserID,
					Team:    team,
				}
				// Snapshot the current rating; players without one stay nil
				if elo, ok := scores[p.UserID]; ok {
					before := elo
					row.EloBefore = &before
				}
				rows = append(rows, row)
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	s.Hub.BroadcastToSession(session.ID, SSEEvent{
		Type: EventMatchStarted,
		Data: fiber.Map{"match_id": match.ID, "match_size": match.MatchSize},
	})

	return &match, nil
}

// sessionCandidates annotates every session participant with their group
// rating and count of completed (non-cancelled) matches in this session.
func (s *MatchService) sessionCandidates(tx *gorm.DB, session *models.PlaySession) ([]MatchCandidate, map[string]int, error) {
	var participants []models.PlaySessionParticipant
	if err := tx.Where("play_session_id = ?", session.ID).Find(&participants).Error; err != nil {
		return nil, nil, err
	}

	var scores []models.EloScore
	if err := tx.Where("group_id = ?", session.GroupID).Find(&scores).Error; err != nil {
		return nil, nil, err
	}
	scoreByUser := make(map[string]int, len(scores))
	for _, score := range scores {
		scoreByUser[score.UserID] = score.Elo
	}

	type gamesRow struct {
		UserID string
		N      int
	}
	var rows []gamesRow
	err := tx.Model(&models.MatchParticipant{}).
		Select("match_participants.user_id AS user_id, COUNT(*) AS n").
		Joins("JOIN matches ON matches.id = match_participants.match_id").
		Where("matches.play_session_id = ? AND matches.ended_at IS NOT NULL AND matches.cancelled = ?", session.ID, false).
		Group("match_participants.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	gamesByUser := make(map[string]int, len(rows))
	for _, r := range rows {
		gamesByUser[r.UserID] = r.N
	}

	candidates := make([]MatchCandidate, 0, len(participants))
	for _, p := range participants {
		elo := scoreByUser[p.UserID]
		if elo == 0 {
			elo = StartingElo
		}
		candidates = append(candidates, MatchCandidate{
			UserID:      p.UserID,
			Elo:         elo,
			IsSpectator: p.IsSpectator,
			GamesPlayed: gamesByUser[p.UserID],
		})
	}
	return candidates, scoreByUser, nil
}

// EndMatch declares a winner and applies rating changes to every
// participant.
func (s *MatchService) EndMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	matchID := c.Params("id")

	var req struct {
		WinningTeam *int `json:"winning_team"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}
	if req.WinningTeam == nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "winning team is required"))
	}

	updates, err := s.endMatch(userID, matchID, *req.WinningTeam)
	if err != nil {
		return replyErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updates": updates})
}

func (s *MatchService) endMatch(userID, matchID string, winningTeam int) ([]EloUpdate, error) {
	if winningTeam != 0 && winningTeam != 1 {
		return nil, declined(fiber.StatusBadRequest, "winning team must be 0 or 1")
	}

	match, session, err := s.loadMatch(matchID)
	if err != nil {
		return nil, err
	}
	if session.HostID != userID {
		return nil, declined(fiber.StatusForbidden, "only the host can end a match")
	}
	if match.Cancelled {
		return nil, declined(fiber.StatusConflict, "match is cancelled")
	}
	if match.EndedAt != nil {
		return nil, declined(fiber.StatusConflict, "match already ended")
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	var updates []EloUpdate
	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-check under the session lock; end-session may have cancelled us
		res := tx.Model(&models.Match{}).
			Where("id = ? AND ended_at IS NULL AND cancelled = ?", match.ID, false).
			Updates(map[string]interface{}{"ended_at": now, "winning_team": winningTeam})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return declined(fiber.StatusConflict, "match already ended")
		}

		var participants []models.MatchParticipant
		if err := tx.Where("match_id = ?", match.ID).Find(&participants).Error; err != nil {
			return err
		}

		teamAvg := [2]float64{}
		teamCount := [2]int{}
		for _, p := range participants {
			elo := StartingElo
			if p.EloBefore != nil {
				elo = *p.EloBefore
			}
			teamAvg[p.Team] += float64(elo)
			teamCount[p.Team]++
		}
		for t := 0; t < 2; t++ {
			if teamCount[t] > 0 {
				teamAvg[t] /= float64(teamCount[t])
			}
		}

		for _, p := range participants {
			won := p.Team == winningTeam
			opponentAvg := teamAvg[1-p.Team]
			playerElo := StartingElo
			if p.EloBefore != nil {
				playerElo = *p.EloBefore
			}

			var score models.EloScore
			hasScore := true
			err := tx.Where("group_id = ? AND user_id = ?", session.GroupID, p.UserID).First(&score).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				hasScore = false
			} else if err != nil {
				return err
			}

			streakBonus := 0.0
			if won {
				streakBonus = CalculateStreakBonus(score.CurrentStreak)
			}

			// Penalized players forfeit gains but not losses
			eloChange := 0
			if !p.Penalized || !won {
				eloChange = CalculateEloChange(float64(playerElo), opponentAvg, won, streakBonus)
			}
			newElo := playerElo + eloChange

			newStreak := 0
			if won {
				newStreak = score.CurrentStreak + 1
				if newStreak > MaxStreakBonusWins {
					newStreak = MaxStreakBonusWins
				}
			}

			if hasScore {
				highest := score.HighestStreak
				if newStreak > highest {
					highest = newStreak
				}
				gamesWon, gamesLost := score.GamesWon, score.GamesLost
				if won {
					gamesWon++
				} else {
					gamesLost++
				}
				err = tx.Model(&models.EloScore{}).
					Where("group_id = ? AND user_id = ?", session.GroupID, p.UserID).
					Updates(map[string]interface{}{
						"elo":            newElo,
						"games_won":      gamesWon,
						"games_lost":     gamesLost,
						"total_games":    score.TotalGames + 1,
						"current_streak": newStreak,
						"highest_streak": highest,
						"last_played_at": now,
					}).Error
				if err != nil {
					return err
				}
			} else {
				// First completed match for this player in this group
				gamesWon, gamesLost := 0, 1
				if won {
					gamesWon, gamesLost = 1, 0
				}
				lastPlayed := now
				err = tx.Create(&models.EloScore{
					GroupID:       session.GroupID,
					UserID:        p.UserID,
					Elo:           newElo,
					GamesWon:      gamesWon,
					GamesLost:     gamesLost,
					TotalGames:    1,
					CurrentStreak: newStreak,
					HighestStreak: newStreak,
					LastPlayedAt:  &lastPlayed,
				}).Error
				if err != nil {
					return err
				}
			}

			err = tx.Model(&models.MatchParticipant{}).
				Where("match_id = ? AND user_id = ?", match.ID, p.UserID).
				Updates(map[string]interface{}{"elo_after": newElo, "elo_change": eloChange}).Error
			if err != nil {
				return err
			}

			updates = append(updates, EloUpdate{UserID: p.UserID, EloChange: eloChange, NewElo: newElo})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Hub.BroadcastToSession(session.ID, SSEEvent{
		Type: EventMatchEnded,
		Data: fiber.Map{"match_id": match.ID, "winning_team": winningTeam},
	})
	s.Hub.BroadcastToMatch(match.ID, SSEEvent{
		Type: EventMatchEnded,
		Data: fiber.Map{"match_id": match.ID, "winning_team": winningTeam, "updates": updates},
	})
	for _, update := range updates {
		s.Hub.BroadcastToUser(update.UserID, SSEEvent{
			Type: EventEloUpdate,
			Data: fiber.Map{"match_id": match.ID, "elo_change": update.EloChange, "new_elo": update.NewElo},
		})
	}

	return updates, nil
}

// CancelMatch abandons an in-progress match with no rating effects.
func (s *MatchService) CancelMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if err := s.cancelMatch(userID, c.Params("id")); err != nil {
		return replyErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *MatchService) cancelMatch(userID, matchID string) error {
	match, session, err := s.loadMatch(matchID)
	if err != nil {
		return err
	}
	if session.HostID != userID {
		return declined(fiber.StatusForbidden, "only the host can cancel a match")
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	res := s.DB.Model(&models.Match{}).
		Where("id = ? AND ended_at IS NULL", match.ID).
		Updates(map[string]interface{}{"cancelled": true, "ended_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return declined(fiber.StatusConflict, "match already ended")
	}
	return nil
}

// PenalizePlayer flags a match participant; the flag only matters when the
// match completes.
func (s *MatchService) PenalizePlayer(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	matchID := c.Params("id")

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return replyErr(c, declined(fiber.StatusBadRequest, "invalid JSON"))
	}
	if req.UserID == "" {
		return replyErr(c, declined(fiber.StatusBadRequest, "user ID is required"))
	}

	if err := s.penalizePlayer(userID, matchID, req.UserID); err != nil {
		return replyErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *MatchService) penalizePlayer(userID, matchID, targetID string) error {
	match, session, err := s.loadMatch(matchID)
	if err != nil {
		return err
	}
	if session.HostID != userID {
		return declined(fiber.StatusForbidden, "only the host can penalize players")
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	// Re-load under the lock; a completed match can no longer be flagged
	var current models.Match
	if err := s.DB.First(&current, "id = ?", match.ID).Error; err != nil {
		return err
	}
	if current.EndedAt != nil {
		return declined(fiber.StatusConflict, "match already ended")
	}

	res := s.DB.Model(&models.MatchParticipant{}).
		Where("match_id = ? AND user_id = ?", match.ID, targetID).
		Update("penalized", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return declined(fiber.StatusNotFound, "not a participant in this match")
	}
	return nil
}

// GetMatch returns a match with its participants split by team.
func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	match, session, err := s.loadMatch(c.Params("id"))
	if err != nil {
		return replyErr(c, err)
	}

	var participants []models.MatchParticipant
	if err := s.DB.Where("match_id = ?", match.ID).Find(&participants).Error; err != nil {
		return replyErr(c, err)
	}

	var team0, team1 []models.MatchParticipant
	for _, p := range participants {
		if p.Team == 0 {
			team0 = append(team0, p)
		} else {
			team1 = append(team1, p)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"match":   match,
		"team0":   team0,
		"team1":   team1,
		"is_host": session.HostID == userID,
	})
}

// GetActiveMatch returns the session's in-progress match, or null.
func (s *MatchService) GetActiveMatch(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var match models.Match
	err := s.DB.Where("play_session_id = ? AND ended_at IS NULL AND cancelled = ?", sessionID, false).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"success": true, "match": nil})
	}
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "match": match})
}
