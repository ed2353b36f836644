package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/globals"
	"github.com/pawsly/pawsly-chat/types"
	"github.com/tidwall/buntdb"
)

// BuntDBPersist is a single-file storage backend, mainly useful for small
// deployments and tests. Keys are "kind:id", values are the JSON-encoded
// entity.
type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("actions_target", "action:*", buntdb.IndexJSON("target_user_id"))
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		db.Close()
		return nil, err
	}
	err = db.CreateIndex("messages_created", "message:*", buntdb.IndexJSON("created_at"))
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (p *BuntDBPersist) set(key string, entity interface{}) error {
	val, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(val), nil)
		return err
	})
}

func (p *BuntDBPersist) get(key string, entity interface{}) error {
	return p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), entity)
	})
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.set("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.get("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, val string) bool {
			user := types.User{}
			if err := json.Unmarshal([]byte(val), &user); err != nil {
				globals.AppLogger.Error("could not unmarshal user", "key", key, "error", err)
				return true
			}
			users = append(users, &user)
			return true
		})
	})
	return users, err
}

func (p *BuntDBPersist) StoreRoom(room types.Room) error {
	if room.Slug == "" {
		return fmt.Errorf("no room slug")
	}
	return p.set("room:"+room.Slug, room)
}

func (p *BuntDBPersist) GetRoom(room *types.Room) error {
	if room.Slug == "" {
		return fmt.Errorf("no room slug")
	}
	return p.get("room:"+room.Slug, room)
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := types.Room{}
			if err := json.Unmarshal([]byte(val), &room); err != nil {
				globals.AppLogger.Error("could not unmarshal room", "key", key, "error", err)
				return true
			}
			rooms = append(rooms, &room)
			return true
		})
	})
	return rooms, err
}

func (p *BuntDBPersist) StoreRole(role types.Role) error {
	if role.Name == "" {
		return fmt.Errorf("no role name")
	}
	return p.set("role:"+role.Name, role)
}

func (p *BuntDBPersist) GetRole(role *types.Role) error {
	if role.Name == "" {
		return fmt.Errorf("no role name")
	}
	return p.get("role:"+role.Name, role)
}

func (p *BuntDBPersist) GetRoles() ([]*types.Role, error) {
	roles := make([]*types.Role, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("role:*", func(key, val string) bool {
			role := types.Role{}
			if err := json.Unmarshal([]byte(val), &role); err != nil {
				globals.AppLogger.Error("could not unmarshal role", "key", key, "error", err)
				return true
			}
			roles = append(roles, &role)
			return true
		})
	})
	return roles, err
}

func (p *BuntDBPersist) AssignRole(assignment types.UserRoleAssignment) error {
	if assignment.UserId == "" || assignment.RoleName == "" {
		return fmt.Errorf("no user id or role name")
	}
	return p.set("assignment:"+assignment.UserId+":"+assignment.RoleName, assignment)
}

func (p *BuntDBPersist) GetUserRoles(userId string) ([]*types.Role, error) {
	roleNames := make([]string, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("assignment:"+userId+":*", func(key, val string) bool {
			assignment := types.UserRoleAssignment{}
			if err := json.Unmarshal([]byte(val), &assignment); err != nil {
				globals.AppLogger.Error("could not unmarshal assignment", "key", key, "error", err)
				return true
			}
			roleNames = append(roleNames, assignment.RoleName)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	roles := make([]*types.Role, 0, len(roleNames))
	for _, name := range roleNames {
		role := types.Role{Name: name}
		err := p.GetRole(&role)
		if errors.Is(err, buntdb.ErrNotFound) {
			continue // assignment to a deleted role
		}
		if err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, nil
}

func (p *BuntDBPersist) StoreAction(action types.ModerationAction) error {
	if action.Id == "" {
		return fmt.Errorf("no action id")
	}
	return p.set("action:"+action.Id, action)
}

func (p *BuntDBPersist) GetAction(action *types.ModerationAction) error {
	if action.Id == "" {
		return fmt.Errorf("no action id")
	}
	return p.get("action:"+action.Id, action)
}

func (p *BuntDBPersist) GetActionsByTarget(targetUserId string) ([]*types.ModerationAction, error) {
	actions := make([]*types.ModerationAction, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		iter := func(key, val string) bool {
			action := types.ModerationAction{}
			if err := json.Unmarshal([]byte(val), &action); err != nil {
				globals.AppLogger.Error("could not unmarshal action", "key", key, "error", err)
				return true
			}
			if targetUserId != "" && action.TargetUserId != targetUserId {
				return false // past the pivot in the index
			}
			actions = append(actions, &action)
			return true
		}
		if targetUserId == "" {
			return tx.AscendKeys("action:*", iter)
		}
		pivot := fmt.Sprintf(`{"target_user_id":%q}`, targetUserId)
		return tx.AscendEqual("actions_target", pivot, iter)
	})
	return actions, err
}

func (p *BuntDBPersist) RevokeAction(actionId, revokedBy string, revokedAt time.Time) (bool, error) {
	revoked := false
	err := p.db.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get("action:" + actionId)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		action := types.ModerationAction{}
		if err := json.Unmarshal([]byte(val), &action); err != nil {
			return err
		}
		if action.RevokedAt != nil {
			return nil // already closed
		}
		action.RevokedAt = &revokedAt
		action.RevokedBy = &revokedBy
		out, err := json.Marshal(action)
		if err != nil {
			return err
		}
		_, _, err = tx.Set("action:"+actionId, string(out), nil)
		if err != nil {
			return err
		}
		revoked = true
		return nil
	})
	return revoked, err
}

func presenceKey(userId, roomSlug string) string {
	return "presence:" + userId + ":" + roomSlug
}

func (p *BuntDBPersist) UpsertPresence(record types.PresenceRecord) error {
	if record.UserId == "" || record.RoomSlug == "" {
		return fmt.Errorf("no user id or room slug")
	}
	return p.set(presenceKey(record.UserId, record.RoomSlug), record)
}

func (p *BuntDBPersist) GetPresence(record *types.PresenceRecord) error {
	if record.UserId == "" || record.RoomSlug == "" {
		return fmt.Errorf("no user id or room slug")
	}
	return p.get(presenceKey(record.UserId, record.RoomSlug), record)
}

func (p *BuntDBPersist) GetOnlinePresence(roomSlug string) ([]*types.PresenceRecord, error) {
	records := make([]*types.PresenceRecord, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("presence:*", func(key, val string) bool {
			record := types.PresenceRecord{}
			if err := json.Unmarshal([]byte(val), &record); err != nil {
				globals.AppLogger.Error("could not unmarshal presence", "key", key, "error", err)
				return true
			}
			if record.RoomSlug == roomSlug && record.IsOnline {
				records = append(records, &record)
			}
			return true
		})
	})
	return records, err
}

func (p *BuntDBPersist) GetUserOnlineRooms(userId string) ([]*types.PresenceRecord, error) {
	records := make([]*types.PresenceRecord, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("presence:"+userId+":*", func(key, val string) bool {
			record := types.PresenceRecord{}
			if err := json.Unmarshal([]byte(val), &record); err != nil {
				globals.AppLogger.Error("could not unmarshal presence", "key", key, "error", err)
				return true
			}
			if record.IsOnline {
				records = append(records, &record)
			}
			return true
		})
	})
	return records, err
}

func (p *BuntDBPersist) SetOffline(userId string, roomSlug *string, at time.Time) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		// collect first, buntdb does not allow writes during iteration
		updates := make(map[string]types.PresenceRecord)
		err := tx.AscendKeys("presence:"+userId+":*", func(key, val string) bool {
			record := types.PresenceRecord{}
			if err := json.Unmarshal([]byte(val), &record); err != nil {
				globals.AppLogger.Error("could not unmarshal presence", "key", key, "error", err)
				return true
			}
			if !record.IsOnline {
				return true
			}
			if roomSlug != nil && record.RoomSlug != *roomSlug {
				return true
			}
			record.IsOnline = false
			record.LastSeen = at
			updates[key] = record
			return true
		})
		if err != nil {
			return err
		}
		for key, record := range updates {
			val, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(key, string(val), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) StoreMessage(message types.Message) error {
	if message.Id == "" {
		return fmt.Errorf("no message id")
	}
	return p.set("message:"+message.Id, message)
}

func (p *BuntDBPersist) CountMessagesSince(senderId string, kind types.ChannelKind, since time.Time) (int64, error) {
	var count int64
	pivot := fmt.Sprintf(`{"created_at":%q}`, since.UTC().Format(time.RFC3339Nano))
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("messages_created", pivot, func(key, val string) bool {
			message := types.Message{}
			if err := json.Unmarshal([]byte(val), &message); err != nil {
				globals.AppLogger.Error("could not unmarshal message", "key", key, "error", err)
				return true
			}
			if message.SenderId == senderId && message.ChannelKind == kind && message.CreatedAt.After(since) {
				count++
			}
			return true
		})
	})
	return count, err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
