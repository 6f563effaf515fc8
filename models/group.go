// models/group.go
package models

import "time"

// Group is a circle of players sharing sessions and a leaderboard.
// Members join via the invite code; user identity lives in the
// Profile Service, so only external user IDs are stored here.
type Group struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name       *string   `json:"name,omitempty"`
	InviteCode string    `json:"invite_code" gorm:"uniqueIndex;not null"`
	CreatedBy  string    `json:"created_by" gorm:"index;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// GroupMember links an external user to a group. Unique per (group, user).
type GroupMember struct {
	GroupID  string    `json:"group_id" gorm:"primaryKey;type:uuid"`
	UserID   string    `json:"user_id" gorm:"primaryKey"`
	JoinedAt time.Time `json:"joined_at"`
}
