package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	perm, err := ParsePermission("ban_user")
	require.NoError(t, err)
	assert.Equal(t, PermissionBanUser, perm)

	// free-form strings are rejected at the catalog boundary
	_, err = ParsePermission("launch_missiles")
	assert.Error(t, err)
	_, err = ParsePermission("")
	assert.Error(t, err)
	_, err = ParsePermission("BAN_USER")
	assert.Error(t, err)
}

func TestPermissionSetUnion(t *testing.T) {
	a := PermissionSet{PermissionKickUser, PermissionBanUser}
	b := PermissionSet{PermissionBanUser, PermissionPinMessages}

	union := a.Union(b)
	assert.Len(t, union, 3)
	assert.True(t, union.Has(PermissionKickUser))
	assert.True(t, union.Has(PermissionBanUser))
	assert.True(t, union.Has(PermissionPinMessages))
	assert.False(t, union.Has(PermissionManageRoom))
}

func TestPermissionSetSQLRoundTrip(t *testing.T) {
	ps := PermissionSet{PermissionKickUser, PermissionManageRoom}
	val, err := ps.Value()
	require.NoError(t, err)

	var out PermissionSet
	require.NoError(t, out.Scan(val))
	assert.Equal(t, ps, out)

	var empty PermissionSet
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
