// models/rating.go
package models

import "time"

// EloScore is the persisted skill rating per (group, user). Created
// lazily on a player's first completed match in the group — never for
// spectator-only participation.
type EloScore struct {
	GroupID       string     `json:"group_id" gorm:"primaryKey;type:uuid"`
	UserID        string     `json:"user_id" gorm:"primaryKey"`
	Elo           int        `json:"elo" gorm:"default:1500"`
	GamesWon      int        `json:"games_won" gorm:"default:0"`
	GamesLost     int        `json:"games_lost" gorm:"default:0"`
	GamesTied     int        `json:"games_tied" gorm:"default:0"`
	TotalGames    int        `json:"total_games" gorm:"default:0"`
	CurrentStreak int        `json:"current_streak" gorm:"default:0"`
	HighestStreak int        `json:"highest_streak" gorm:"default:0"`
	LastPlayedAt  *time.Time `json:"last_played_at,omitempty"`
}
