package types

import "time"

type ActionType string

const (
	ActionKick    ActionType = "kick"
	ActionBan     ActionType = "ban"
	ActionSilence ActionType = "silence"
	ActionWarn    ActionType = "warn"
)

func ParseActionType(s string) (ActionType, bool) {
	switch ActionType(s) {
	case ActionKick, ActionBan, ActionSilence, ActionWarn:
		return ActionType(s), true
	}
	return "", false
}

// RequiredPermission maps an action type to the permission needed to issue
// (or revoke) it.
func (t ActionType) RequiredPermission() Permission {
	switch t {
	case ActionKick:
		return PermissionKickUser
	case ActionBan:
		return PermissionBanUser
	case ActionSilence:
		return PermissionSilenceUser
	case ActionWarn:
		return PermissionWarnUser
	}
	return ""
}

// Ongoing reports whether the action type carries an ongoing state. Kick and
// warn are point-in-time events, they are recorded for audit and for the
// target's one-shot notification but never make ActiveAt true.
func (t ActionType) Ongoing() bool {
	return t == ActionBan || t == ActionSilence
}

// ModerationAction rows are immutable after creation except for the two
// revocation fields.
type ModerationAction struct {
	Id              string     `json:"id" gorm:"primaryKey"`
	TargetUserId    string     `json:"target_user_id" gorm:"index"`
	RoomSlug        *string    `json:"room_slug"` // nil = global, applies across all rooms
	ActionType      ActionType `json:"action_type"`
	Reason          string     `json:"reason"`
	DurationMinutes *int       `json:"duration_minutes"` // nil = permanent
	ExpiresAt       *time.Time `json:"expires_at"`       // derived from DurationMinutes at issue time
	IssuedBy        string     `json:"issued_by"`
	IssuedAt        time.Time  `json:"issued_at"`
	RevokedAt       *time.Time `json:"revoked_at"`
	RevokedBy       *string    `json:"revoked_by"`
}

// ActiveAt implements the single source of truth for the action lifecycle:
// expiry is lazy, nothing ever writes a row to flip it inactive.
func (a ModerationAction) ActiveAt(now time.Time) bool {
	if !a.ActionType.Ongoing() {
		return false
	}
	if a.RevokedAt != nil {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// AppliesToRoom reports whether the action covers the given room context.
// Global actions (nil room) cover every room.
func (a ModerationAction) AppliesToRoom(roomSlug string) bool {
	return a.RoomSlug == nil || *a.RoomSlug == roomSlug
}
