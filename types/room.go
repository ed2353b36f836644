package types

import (
	"time"

	"gorm.io/gorm"
)

type Room struct {
	Slug      string         `json:"slug" gorm:"primaryKey"`
	Name      string         `json:"name"`
	OwnerId   string         `json:"-"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// PresenceRecord tracks one user in one room. At most one record per user
// across all rooms may have IsOnline set, the tracker enforces that on Enter.
type PresenceRecord struct {
	UserId   string    `json:"user_id" gorm:"primaryKey"`
	RoomSlug string    `json:"room_slug" gorm:"primaryKey"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// Fresh reports whether the record counts as online for read-side queries:
// the online flag alone is not enough, the heartbeat must be recent.
func (p PresenceRecord) Fresh(now time.Time, window time.Duration) bool {
	return p.IsOnline && now.Sub(p.LastSeen) <= window
}
