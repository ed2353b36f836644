// Package presence tracks per-user per-room online state. State lives in the
// persistent store, never in process memory, so multiple service instances
// stay correct without cross-instance locking. A heartbeat that stops
// arriving simply ages out of the online result set within the freshness
// window.
package presence

import (
	"fmt"
	"time"

	"github.com/pawsly/pawsly-chat/globals"
	"github.com/pawsly/pawsly-chat/moderation"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/types"
)

type Tracker struct {
	persister  persistence.Persister
	moderation *moderation.Service
	freshness  time.Duration

	// Now is the clock used for heartbeats and freshness checks, overridable
	// in tests.
	Now func() time.Time
}

func NewTracker(persister persistence.Persister, moderationService *moderation.Service, freshness time.Duration) *Tracker {
	return &Tracker{
		persister:  persister,
		moderation: moderationService,
		freshness:  freshness,
		Now:        time.Now,
	}
}

// Enter handles a heartbeat into a room. Actively banned users are rejected
// before any presence row is touched. A successful Enter leaves the user
// online in exactly this room: every other room is demoted first, which keeps
// the at-most-one-online-room invariant.
func (t *Tracker) Enter(userId, roomSlug string) error {
	if userId == "" {
		return &types.ValidationError{Field: "user_id"}
	}
	room := types.Room{Slug: roomSlug}
	err := t.persister.GetRoom(&room)
	if persistence.IsNotFound(err) {
		return &types.NotFoundError{Kind: "room", Id: roomSlug}
	}
	if err != nil {
		return fmt.Errorf("could not resolve room: %w", err)
	}

	status, err := t.moderation.QueryActive(userId, &roomSlug)
	if err != nil {
		return fmt.Errorf("could not check moderation state: %w", err)
	}
	if status.IsBanned {
		return &types.BannedError{RoomSlug: roomSlug}
	}

	now := t.Now().UTC()
	// demote every other room first, then upsert the target room; both steps
	// are idempotent, a failure in between leaves stale rows, not corrupt ones
	if err := t.persister.SetOffline(userId, nil, now); err != nil {
		return fmt.Errorf("could not demote presence: %w", err)
	}
	record := types.PresenceRecord{
		UserId:   userId,
		RoomSlug: roomSlug,
		IsOnline: true,
		LastSeen: now,
	}
	if err := t.persister.UpsertPresence(record); err != nil {
		return fmt.Errorf("could not upsert presence: %w", err)
	}
	return nil
}

// Leave marks the user offline in the room. Leaving a room you were not in is
// a no-op, not an error.
func (t *Tracker) Leave(userId, roomSlug string) error {
	if userId == "" {
		return &types.ValidationError{Field: "user_id"}
	}
	return t.persister.SetOffline(userId, &roomSlug, t.Now().UTC())
}

// ForceOffline is invoked by the moderation service as a side effect of kick
// and ban. It is best-effort and never fails the originating action: errors
// are logged, a target with no presence rows is fine.
func (t *Tracker) ForceOffline(userId string, roomSlug *string) {
	err := t.persister.SetOffline(userId, roomSlug, t.Now().UTC())
	if err != nil {
		globals.AppLogger.Error("could not force user offline", "user", userId, "room", roomSlug, "error", err)
	}
}

// OnlineUser is a presence row enriched with role badges and moderation
// status so a moderation UI can render without a second round trip.
type OnlineUser struct {
	UserId     string    `json:"id"`
	Nick       string    `json:"name"`
	Avatar     string    `json:"avatar"`
	LastSeen   time.Time `json:"last_seen"`
	Roles      []string  `json:"roles"`
	IsBanned   bool      `json:"is_banned"`
	IsSilenced bool      `json:"is_silenced"`
}

// ListOnline returns the users currently online in a room. Online means the
// row has the online flag set and its last heartbeat is within the freshness
// window; stale rows count as offline without needing a write.
func (t *Tracker) ListOnline(roomSlug string) ([]*OnlineUser, error) {
	room := types.Room{Slug: roomSlug}
	err := t.persister.GetRoom(&room)
	if persistence.IsNotFound(err) {
		return nil, &types.NotFoundError{Kind: "room", Id: roomSlug}
	}
	if err != nil {
		return nil, fmt.Errorf("could not resolve room: %w", err)
	}

	records, err := t.persister.GetOnlinePresence(roomSlug)
	if err != nil {
		return nil, fmt.Errorf("could not load presence: %w", err)
	}
	now := t.Now().UTC()
	online := make([]*OnlineUser, 0, len(records))
	for _, record := range records {
		if !record.Fresh(now, t.freshness) {
			continue
		}
		entry := &OnlineUser{
			UserId:   record.UserId,
			LastSeen: record.LastSeen,
			Roles:    make([]string, 0),
		}
		user := types.User{Id: record.UserId}
		err := t.persister.GetUser(&user)
		if err != nil && !persistence.IsNotFound(err) {
			return nil, fmt.Errorf("could not load user %s: %w", record.UserId, err)
		}
		entry.Nick = user.Nick
		entry.Avatar = user.Avatar

		roles, err := t.persister.GetUserRoles(record.UserId)
		if err != nil {
			return nil, fmt.Errorf("could not load roles for %s: %w", record.UserId, err)
		}
		for _, role := range roles {
			entry.Roles = append(entry.Roles, role.Name)
		}
		if user.SiteAdmin {
			entry.Roles = append(entry.Roles, "admin")
		}

		status, err := t.moderation.QueryActive(record.UserId, &roomSlug)
		if err != nil {
			return nil, fmt.Errorf("could not load moderation state for %s: %w", record.UserId, err)
		}
		entry.IsBanned = status.IsBanned
		entry.IsSilenced = status.IsSilenced

		online = append(online, entry)
	}
	return online, nil
}
