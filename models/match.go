// models/match.go
package models

import "time"

// Match is one round of competition between two equal-size teams drawn
// from a session. At most one match per session may be in progress
// (EndedAt nil and not cancelled) at any time.
type Match struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	PlaySessionID string     `json:"play_session_id" gorm:"index;not null"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	WinningTeam   *int       `json:"winning_team,omitempty"` // 0 = team1, 1 = team2, nil = undecided/cancelled
	MatchSize     int        `json:"match_size" gorm:"not null"`
	Cancelled     bool       `json:"cancelled" gorm:"default:false"`
}

// MatchParticipant records a player's slot in a match. EloBefore is a
// snapshot taken at match start (nil if the player has no rating yet);
// EloAfter/EloChange are written only on normal completion.
type MatchParticipant struct {
	MatchID   string `json:"match_id" gorm:"primaryKey;type:uuid"`
	UserID    string `json:"user_id" gorm:"primaryKey"`
	Team      int    `json:"team" gorm:"not null"` // 0 = team1, 1 = team2
	EloBefore *int   `json:"elo_before,omitempty"`
	EloAfter  *int   `json:"elo_after,omitempty"`
	EloChange *int   `json:"elo_change,omitempty"`
	Penalized bool   `json:"penalized" gorm:"default:false"`
}
