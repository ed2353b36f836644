package filter

import (
	"testing"
	"time"

	"github.com/pawsly/pawsly-chat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRejectsInvalidExpressions(t *testing.T) {
	_, err := Compile(`Action.Type ==`)
	assert.Error(t, err)
	// non-boolean results are rejected at compile time
	_, err = Compile(`Action.Type`)
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	general := "general"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	action := &types.ModerationAction{
		Id:           "a1",
		TargetUserId: "alice",
		RoomSlug:     &general,
		ActionType:   types.ActionBan,
		Reason:       "spam",
		IssuedBy:     "mod",
		IssuedAt:     now,
	}

	prog, err := Compile(`Action.Type == "ban" && Active`)
	require.NoError(t, err)
	match, err := Match(prog, action, true)
	require.NoError(t, err)
	assert.True(t, match)
	match, err = Match(prog, action, false)
	require.NoError(t, err)
	assert.False(t, match)

	prog, err = Compile(`Action.Room == "dogs"`)
	require.NoError(t, err)
	match, err = Match(prog, action, true)
	require.NoError(t, err)
	assert.False(t, match)

	prog, err = Compile(`Action.Target == "alice" && !Action.Revoked`)
	require.NoError(t, err)
	match, err = Match(prog, action, true)
	require.NoError(t, err)
	assert.True(t, match)

	// a nil program matches everything
	match, err = Match(nil, action, false)
	require.NoError(t, err)
	assert.True(t, match)
}
