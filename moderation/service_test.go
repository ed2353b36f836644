package moderation

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/permissions"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, persistence.Persister) {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type: "sqlite",
			DSN:  filepath.Join(t.TempDir(), "test.db"),
		},
	}
	persister, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, persister)
	t.Cleanup(func() { persister.Close() })

	resolver := permissions.NewResolver(persister, cfg)
	return NewService(persister, resolver), persister
}

func seedCatalog(t *testing.T, persister persistence.Persister) {
	t.Helper()
	require.NoError(t, persister.StoreRoom(types.Room{Slug: "general", Name: "General"}))
	require.NoError(t, persister.StoreRoom(types.Room{Slug: "dogs", Name: "Dogs"}))
	require.NoError(t, persister.StoreRole(types.Role{
		Name:     "moderator",
		Priority: 50,
		Permissions: types.PermissionSet{
			types.PermissionKickUser,
			types.PermissionBanUser,
			types.PermissionSilenceUser,
			types.PermissionWarnUser,
		},
	}))
	require.NoError(t, persister.StoreRole(types.Role{
		Name:        "helper",
		Priority:    10,
		Permissions: types.PermissionSet{types.PermissionWarnUser},
	}))
	require.NoError(t, persister.StoreUser(types.User{Id: "mod", Nick: "Mod"}))
	require.NoError(t, persister.StoreUser(types.User{Id: "mod2", Nick: "Mod2"}))
	require.NoError(t, persister.StoreUser(types.User{Id: "target", Nick: "Target"}))
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "mod", RoleName: "moderator"}))
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "mod2", RoleName: "moderator"}))
}

func strPtr(s string) *string { return &s }

func TestIssueValidation(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	var validationErr *types.ValidationError
	_, err := service.Issue("mod", "target", "explode", nil, nil, "")
	require.True(t, errors.As(err, &validationErr))

	_, err = service.Issue("mod", "", "ban", nil, nil, "")
	require.True(t, errors.As(err, &validationErr))
}

func TestIssueRequiresPermission(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "helper1", RoleName: "helper"}))

	var authzErr *types.AuthorizationError
	_, err := service.Issue("helper1", "target", "ban", nil, nil, "")
	require.True(t, errors.As(err, &authzErr))

	// warn is within the helper's permission set
	_, err = service.Issue("helper1", "target", "warn", nil, nil, "being naughty")
	require.NoError(t, err)
}

func TestIssueNoSelfModeration(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	var selfErr *types.SelfActionError
	_, err := service.Issue("mod", "mod", "kick", nil, nil, "")
	require.True(t, errors.As(err, &selfErr))
}

func TestIssuePriorityRule(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	// equal priority is not sufficient to moderate
	var authzErr *types.AuthorizationError
	_, err := service.Issue("mod", "mod2", "ban", nil, nil, "")
	require.True(t, errors.As(err, &authzErr))

	// lower-priority issuer against higher-priority target
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "helper1", RoleName: "helper"}))
	_, err = service.Issue("helper1", "mod", "warn", nil, nil, "")
	require.True(t, errors.As(err, &authzErr))

	// strictly higher priority wins
	_, err = service.Issue("mod", "target", "ban", nil, nil, "")
	require.NoError(t, err)
}

func TestIssueUnknownRoom(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	var notFoundErr *types.NotFoundError
	_, err := service.Issue("mod", "target", "ban", strPtr("no-such-room"), nil, "")
	require.True(t, errors.As(err, &notFoundErr))
}

func TestIssueDurationPresets(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.Now = func() time.Time { return now }

	action, err := service.Issue("mod", "target", "silence", strPtr("general"), strPtr("15m"), "spam")
	require.NoError(t, err)
	require.NotNil(t, action.DurationMinutes)
	assert.Equal(t, 15, *action.DurationMinutes)
	require.NotNil(t, action.ExpiresAt)
	assert.Equal(t, now.Add(15*time.Minute), action.ExpiresAt.UTC())
	require.NotNil(t, action.RoomSlug)
	assert.Equal(t, "general", *action.RoomSlug)

	// unrecognized keys are treated as permanent, not as an error
	action, err = service.Issue("mod", "target", "ban", nil, strPtr("42fortnights"), "")
	require.NoError(t, err)
	assert.Nil(t, action.DurationMinutes)
	assert.Nil(t, action.ExpiresAt)

	action, err = service.Issue("mod", "target", "ban", nil, strPtr("permanent"), "")
	require.NoError(t, err)
	assert.Nil(t, action.ExpiresAt)
}

func TestQueryActiveRoomScoping(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	_, err := service.Issue("mod", "target", "silence", strPtr("general"), strPtr("15m"), "")
	require.NoError(t, err)

	result, err := service.QueryActive("target", strPtr("general"))
	require.NoError(t, err)
	assert.True(t, result.IsSilenced)
	assert.False(t, result.IsBanned)
	assert.Len(t, result.Actions, 1)

	// the silence is scoped to "general", other rooms are unaffected
	result, err = service.QueryActive("target", strPtr("dogs"))
	require.NoError(t, err)
	assert.False(t, result.IsSilenced)
}

func TestQueryActiveGlobalBan(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	action, err := service.Issue("mod", "target", "ban", nil, strPtr("permanent"), "")
	require.NoError(t, err)
	assert.Nil(t, action.ExpiresAt)

	// a global ban covers every room slug, including ones never joined
	for _, room := range []string{"general", "dogs", "any-room"} {
		result, err := service.QueryActive("target", strPtr(room))
		require.NoError(t, err)
		assert.True(t, result.IsBanned, "room %s", room)
	}
}

func TestLazyExpiryWithoutWrites(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.Now = func() time.Time { return now }

	issued, err := service.Issue("mod", "target", "ban", strPtr("general"), strPtr("30m"), "")
	require.NoError(t, err)

	result, err := service.QueryActive("target", strPtr("general"))
	require.NoError(t, err)
	require.True(t, result.IsBanned)

	// advance past the expiry: the same query flips without any write
	now = now.Add(31 * time.Minute)
	result, err = service.QueryActive("target", strPtr("general"))
	require.NoError(t, err)
	assert.False(t, result.IsBanned)

	// natural expiry never sets the revocation fields
	stored := types.ModerationAction{Id: issued.Id}
	require.NoError(t, persister.GetAction(&stored))
	assert.Nil(t, stored.RevokedAt)
	assert.Nil(t, stored.RevokedBy)
}

func TestKickAndWarnAreNeverActive(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	_, err := service.Issue("mod", "target", "kick", strPtr("general"), nil, "")
	require.NoError(t, err)
	_, err = service.Issue("mod", "target", "warn", nil, nil, "")
	require.NoError(t, err)

	result, err := service.QueryActive("target", strPtr("general"))
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
	assert.False(t, result.IsBanned)
	assert.False(t, result.IsSilenced)

	// still recorded for audit
	log, err := service.Log("target")
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestRevokeById(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	action, err := service.Issue("mod", "target", "ban", nil, nil, "")
	require.NoError(t, err)

	// any moderator holding the permission class may revoke, not only the
	// original issuer
	require.NoError(t, service.Revoke("mod2", action.Id))

	stored := types.ModerationAction{Id: action.Id}
	require.NoError(t, persister.GetAction(&stored))
	require.NotNil(t, stored.RevokedAt)
	require.NotNil(t, stored.RevokedBy)
	assert.Equal(t, "mod2", *stored.RevokedBy)

	// double revocation is a no-op
	require.NoError(t, service.Revoke("mod", action.Id))
	again := types.ModerationAction{Id: action.Id}
	require.NoError(t, persister.GetAction(&again))
	assert.Equal(t, "mod2", *again.RevokedBy)
}

func TestRevokeRequiresPermissionClass(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)
	require.NoError(t, persister.AssignRole(types.UserRoleAssignment{UserId: "helper1", RoleName: "helper"}))

	action, err := service.Issue("mod", "target", "ban", nil, nil, "")
	require.NoError(t, err)

	var authzErr *types.AuthorizationError
	err = service.Revoke("helper1", action.Id)
	require.True(t, errors.As(err, &authzErr))
}

func TestRevokeUnknownAction(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	var notFoundErr *types.NotFoundError
	err := service.Revoke("mod", "11111111-2222-3333-4444-555555555555")
	require.True(t, errors.As(err, &notFoundErr))
}

func TestRevokeAllActiveLiftsGlobal(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	_, err := service.Issue("mod", "target", "silence", strPtr("general"), nil, "")
	require.NoError(t, err)
	_, err = service.Issue("mod", "target", "silence", nil, nil, "")
	require.NoError(t, err)
	_, err = service.Issue("mod", "target", "ban", nil, nil, "")
	require.NoError(t, err)

	// revoking "in this room" also lifts the global silence, but leaves the
	// ban untouched
	revoked, err := service.RevokeAllActive("mod2", "target", "silence", strPtr("general"))
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	result, err := service.QueryActive("target", strPtr("general"))
	require.NoError(t, err)
	assert.False(t, result.IsSilenced)
	assert.True(t, result.IsBanned)
}

func TestRevokeAllActiveWithoutRoom(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	_, err := service.Issue("mod", "target", "silence", strPtr("general"), nil, "")
	require.NoError(t, err)
	_, err = service.Issue("mod", "target", "silence", strPtr("dogs"), nil, "")
	require.NoError(t, err)

	revoked, err := service.RevokeAllActive("mod", "target", "silence", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	result, err := service.QueryActive("target", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
}

type recordingForcer struct {
	userId   string
	roomSlug *string
	calls    int
}

func (f *recordingForcer) ForceOffline(userId string, roomSlug *string) {
	f.userId = userId
	f.roomSlug = roomSlug
	f.calls++
}

func TestIssueForcesOfflineForKickAndBan(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)

	forcer := &recordingForcer{}
	service.SetOfflineForcer(forcer)

	_, err := service.Issue("mod", "target", "kick", strPtr("dogs"), nil, "")
	require.NoError(t, err)
	require.Equal(t, 1, forcer.calls)
	assert.Equal(t, "target", forcer.userId)
	require.NotNil(t, forcer.roomSlug)
	assert.Equal(t, "dogs", *forcer.roomSlug)

	// a global ban forces the target offline everywhere
	_, err = service.Issue("mod", "target", "ban", nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, 2, forcer.calls)
	assert.Nil(t, forcer.roomSlug)

	// silence and warn never touch presence
	_, err = service.Issue("mod", "target", "silence", nil, nil, "")
	require.NoError(t, err)
	_, err = service.Issue("mod", "target", "warn", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, forcer.calls)
}

func TestSiteAdminOutranksModerators(t *testing.T) {
	service, persister := newTestService(t)
	seedCatalog(t, persister)
	require.NoError(t, persister.StoreUser(types.User{Id: "root", SiteAdmin: true}))

	// an admin can moderate a moderator, but not the other way around
	_, err := service.Issue("root", "mod", "ban", nil, nil, "")
	require.NoError(t, err)

	var authzErr *types.AuthorizationError
	_, err = service.Issue("mod", "root", "ban", nil, nil, "")
	require.True(t, errors.As(err, &authzErr))
}
