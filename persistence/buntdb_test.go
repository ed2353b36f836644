package persistence

import (
	"testing"
	"time"

	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuntTestPersister(t *testing.T) Persister {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type: "buntdb",
			DSN:  ":memory:",
		},
	}
	persister, err := NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, persister)
	t.Cleanup(func() { persister.Close() })
	return persister
}

func TestBuntUserRoundTrip(t *testing.T) {
	persister := newBuntTestPersister(t)

	require.NoError(t, persister.StoreUser(types.User{Id: "alice", Nick: "Alice"}))
	user := types.User{Id: "alice"}
	require.NoError(t, persister.GetUser(&user))
	assert.Equal(t, "Alice", user.Nick)

	missing := types.User{Id: "bob"}
	err := persister.GetUser(&missing)
	assert.True(t, IsNotFound(err))
}

func TestBuntRolesAndAssignments(t *testing.T) {
	persister := newBuntTestPersister(t)

	require.NoError(t, persister.StoreRole(types.Role{
		Name:        "moderator",
		Priority:    50,
		Permissions: types.PermissionSet{types.PermissionKickUser},
	}))
	require.NoError(t, persister.StoreRole(types.Role{Name: "helper", Priority: 10}))
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "alice", RoleName: "moderator"}))
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "alice", RoleName: "helper"}))

	roles, err := persister.GetUserRoles("alice")
	require.NoError(t, err)
	require.Len(t, roles, 2)

	roles, err = persister.GetUserRoles("bob")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestBuntActionsByTarget(t *testing.T) {
	persister := newBuntTestPersister(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, persister.StoreAction(types.ModerationAction{
		Id: "a1", TargetUserId: "alice", ActionType: types.ActionBan, IssuedBy: "mod", IssuedAt: now,
	}))
	require.NoError(t, persister.StoreAction(types.ModerationAction{
		Id: "a2", TargetUserId: "alice", ActionType: types.ActionWarn, IssuedBy: "mod", IssuedAt: now,
	}))
	require.NoError(t, persister.StoreAction(types.ModerationAction{
		Id: "b1", TargetUserId: "bob", ActionType: types.ActionSilence, IssuedBy: "mod", IssuedAt: now,
	}))

	actions, err := persister.GetActionsByTarget("alice")
	require.NoError(t, err)
	assert.Len(t, actions, 2)

	all, err := persister.GetActionsByTarget("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBuntRevokeActionIsConditional(t *testing.T) {
	persister := newBuntTestPersister(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, persister.StoreAction(types.ModerationAction{
		Id: "a1", TargetUserId: "alice", ActionType: types.ActionBan, IssuedBy: "mod", IssuedAt: now,
	}))

	ok, err := persister.RevokeAction("a1", "mod2", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// second revocation does not touch the row
	ok, err = persister.RevokeAction("a1", "mod3", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	action := types.ModerationAction{Id: "a1"}
	require.NoError(t, persister.GetAction(&action))
	require.NotNil(t, action.RevokedBy)
	assert.Equal(t, "mod2", *action.RevokedBy)

	// unknown ids are a no-op, not an error
	ok, err = persister.RevokeAction("nope", "mod", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuntPresence(t *testing.T) {
	persister := newBuntTestPersister(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, room := range []string{"general", "dogs"} {
		require.NoError(t, persister.UpsertPresence(types.PresenceRecord{
			UserId: "alice", RoomSlug: room, IsOnline: true, LastSeen: now,
		}))
	}
	require.NoError(t, persister.UpsertPresence(types.PresenceRecord{
		UserId: "bob", RoomSlug: "general", IsOnline: true, LastSeen: now,
	}))

	online, err := persister.GetOnlinePresence("general")
	require.NoError(t, err)
	assert.Len(t, online, 2)

	rooms, err := persister.GetUserOnlineRooms("alice")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	// scoped offline only touches the named room
	general := "general"
	require.NoError(t, persister.SetOffline("alice", &general, now.Add(time.Minute)))
	rooms, err = persister.GetUserOnlineRooms("alice")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "dogs", rooms[0].RoomSlug)

	// unscoped offline clears the rest
	require.NoError(t, persister.SetOffline("alice", nil, now.Add(2*time.Minute)))
	rooms, err = persister.GetUserOnlineRooms("alice")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	// bob is unaffected
	online, err = persister.GetOnlinePresence("general")
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "bob", online[0].UserId)
}

func TestBuntCountMessagesSince(t *testing.T) {
	persister := newBuntTestPersister(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, persister.StoreMessage(types.Message{
		Id: "m1", SenderId: "alice", ChannelKind: types.ChannelRoom, Body: "hi", CreatedAt: now.Add(-30 * time.Second),
	}))
	require.NoError(t, persister.StoreMessage(types.Message{
		Id: "m2", SenderId: "alice", ChannelKind: types.ChannelRoom, Body: "hi", CreatedAt: now.Add(-90 * time.Second),
	}))
	require.NoError(t, persister.StoreMessage(types.Message{
		Id: "m3", SenderId: "alice", ChannelKind: types.ChannelDirect, Body: "hi", CreatedAt: now.Add(-30 * time.Second),
	}))
	require.NoError(t, persister.StoreMessage(types.Message{
		Id: "m4", SenderId: "bob", ChannelKind: types.ChannelRoom, Body: "hi", CreatedAt: now.Add(-30 * time.Second),
	}))

	count, err := persister.CountMessagesSince("alice", types.ChannelRoom, now.Add(-60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = persister.CountMessagesSince("alice", types.ChannelRoom, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
