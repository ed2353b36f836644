package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(30 * time.Minute)

	permanent := ModerationAction{ActionType: ActionBan}
	assert.True(t, permanent.ActiveAt(now))
	assert.True(t, permanent.ActiveAt(now.Add(1000*time.Hour)))

	timed := ModerationAction{ActionType: ActionSilence, ExpiresAt: &later}
	assert.True(t, timed.ActiveAt(now))
	assert.True(t, timed.ActiveAt(later.Add(-time.Second)))
	// expiry boundary: expires_at must be strictly in the future
	assert.False(t, timed.ActiveAt(later))
	assert.False(t, timed.ActiveAt(later.Add(time.Second)))

	revoked := ModerationAction{ActionType: ActionBan, RevokedAt: &now}
	assert.False(t, revoked.ActiveAt(now))

	// kick and warn are point-in-time events, never active
	assert.False(t, ModerationAction{ActionType: ActionKick}.ActiveAt(now))
	assert.False(t, ModerationAction{ActionType: ActionWarn}.ActiveAt(now))
}

func TestAppliesToRoom(t *testing.T) {
	general := "general"
	scoped := ModerationAction{RoomSlug: &general}
	assert.True(t, scoped.AppliesToRoom("general"))
	assert.False(t, scoped.AppliesToRoom("dogs"))

	global := ModerationAction{}
	assert.True(t, global.AppliesToRoom("general"))
	assert.True(t, global.AppliesToRoom("any-room"))
}

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, PermissionKickUser, ActionKick.RequiredPermission())
	assert.Equal(t, PermissionBanUser, ActionBan.RequiredPermission())
	assert.Equal(t, PermissionSilenceUser, ActionSilence.RequiredPermission())
	assert.Equal(t, PermissionWarnUser, ActionWarn.RequiredPermission())
}

func TestParseActionType(t *testing.T) {
	for _, valid := range []string{"kick", "ban", "silence", "warn"} {
		_, ok := ParseActionType(valid)
		assert.True(t, ok, valid)
	}
	_, ok := ParseActionType("obliterate")
	assert.False(t, ok)
	_, ok = ParseActionType("")
	assert.False(t, ok)
}
