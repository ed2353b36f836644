package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/types"
	"github.com/tidwall/buntdb"
	"gorm.io/gorm"
)

// Persister is the storage boundary of the moderation core. All mutation is
// expressed as idempotent upserts or conditional updates so that concurrent
// retries are safe.
type Persister interface {
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsers() ([]*types.User, error)

	StoreRoom(types.Room) error
	GetRoom(*types.Room) error
	GetRooms() ([]*types.Room, error)

	StoreRole(types.Role) error
	GetRole(*types.Role) error
	GetRoles() ([]*types.Role, error)
	AssignRole(types.UserRoleAssignment) error
	GetUserRoles(userId string) ([]*types.Role, error)

	StoreAction(types.ModerationAction) error
	GetAction(*types.ModerationAction) error
	// GetActionsByTarget returns every recorded action against the target,
	// including revoked and expired rows. An empty target id returns all
	// actions (audit listing).
	GetActionsByTarget(targetUserId string) ([]*types.ModerationAction, error)
	// RevokeAction conditionally closes an action: it only touches rows whose
	// revoked_at is still null and reports whether a row was updated, which
	// makes double-revocation a no-op.
	RevokeAction(actionId, revokedBy string, revokedAt time.Time) (bool, error)

	UpsertPresence(types.PresenceRecord) error
	GetPresence(*types.PresenceRecord) error
	// GetOnlinePresence returns rows with is_online = true for the room;
	// freshness filtering happens in the tracker, not here.
	GetOnlinePresence(roomSlug string) ([]*types.PresenceRecord, error)
	// GetUserOnlineRooms returns the rooms where the user is currently marked
	// online (the single-online-room invariant allows more than one row only
	// transiently, the tracker demotes them on the next Enter).
	GetUserOnlineRooms(userId string) ([]*types.PresenceRecord, error)
	// SetOffline flips is_online to false where it is still true. A nil room
	// covers every room of the user. Rows that do not exist are not created.
	SetOffline(userId string, roomSlug *string, at time.Time) error

	StoreMessage(types.Message) error
	CountMessagesSince(senderId string, kind types.ChannelKind, since time.Time) (int64, error)

	Close() error
}

// NewPersister creates the backend selected in the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "postgres", "sqlite":
		return NewGormPersister(cfg)
	case "buntdb":
		return NewBuntPersister(cfg)
	case "":
		return nil, nil // no persistence configured
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}

// IsNotFound reports whether err is a backend record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, buntdb.ErrNotFound)
}
