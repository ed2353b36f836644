package types

import "time"

// ChannelKind separates the rate-limit counters: room chat and direct
// messages have independent limits.
type ChannelKind string

const (
	ChannelRoom   ChannelKind = "room"
	ChannelDirect ChannelKind = "direct"
)

type Message struct {
	Id          string      `json:"id" gorm:"primaryKey"`
	ChannelKind ChannelKind `json:"channel_kind" gorm:"index:idx_messages_sender_window,priority:2"`
	SenderId    string      `json:"sender_id" gorm:"index:idx_messages_sender_window,priority:1"`
	RoomSlug    *string     `json:"room_slug"`    // set for room chat
	RecipientId *string     `json:"recipient_id"` // set for direct messages
	Body        string      `json:"body"`
	CreatedAt   time.Time   `json:"created_at" gorm:"index:idx_messages_sender_window,priority:3"`
}
