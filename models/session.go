// models/session.go
package models

import "time"

// PlaySession is a bounded gathering of group members from which matches
// are drawn. Exactly one host, fixed at creation. Active while EndedAt
// is nil; ending is irreversible.
type PlaySession struct {
	ID             string     `json:"id" gorm:"primaryKey;type:uuid"`
	GroupID        string     `json:"group_id" gorm:"index;not null"`
	HostID         string     `json:"host_id" gorm:"not null"`
	CreatedAt      time.Time  `json:"created_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	HostLastSeenAt time.Time  `json:"host_last_seen_at"` // refreshed by heartbeat, read by the reaper
}

// PlaySessionParticipant is one user inside a session. The host is always
// a non-spectator participant from creation.
type PlaySessionParticipant struct {
	PlaySessionID string    `json:"play_session_id" gorm:"primaryKey;type:uuid"`
	UserID        string    `json:"user_id" gorm:"primaryKey"`
	IsSpectator   bool      `json:"is_spectator" gorm:"default:false"`
	JoinedAt      time.Time `json:"joined_at"`
}
