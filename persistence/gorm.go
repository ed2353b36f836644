package persistence

import (
	"fmt"
	"time"

	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(
		&types.User{},
		&types.Room{},
		&types.Role{},
		&types.UserRoleAssignment{},
		&types.ModerationAction{},
		&types.PresenceRecord{},
		&types.Message{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	return p.db.First(user).Error
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) StoreRoom(room types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) GetRoom(room *types.Room) error {
	return p.db.First(room).Error
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) StoreRole(role types.Role) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&role).Error
}

func (p *GormPersist) GetRole(role *types.Role) error {
	return p.db.First(role).Error
}

func (p *GormPersist) GetRoles() ([]*types.Role, error) {
	roles := make([]*types.Role, 0)
	err := p.db.Find(&roles).Error
	return roles, err
}

func (p *GormPersist) AssignRole(assignment types.UserRoleAssignment) error {
	return p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&assignment).Error
}

func (p *GormPersist) GetUserRoles(userId string) ([]*types.Role, error) {
	roles := make([]*types.Role, 0)
	err := p.db.
		Joins("JOIN user_role_assignments ON user_role_assignments.role_name = roles.name").
		Where("user_role_assignments.user_id = ?", userId).
		Find(&roles).Error
	return roles, err
}

func (p *GormPersist) StoreAction(action types.ModerationAction) error {
	return p.db.Create(&action).Error
}

func (p *GormPersist) GetAction(action *types.ModerationAction) error {
	return p.db.First(action).Error
}

func (p *GormPersist) GetActionsByTarget(targetUserId string) ([]*types.ModerationAction, error) {
	actions := make([]*types.ModerationAction, 0)
	q := p.db.Order("issued_at DESC")
	if targetUserId != "" {
		q = q.Where("target_user_id = ?", targetUserId)
	}
	err := q.Find(&actions).Error
	return actions, err
}

func (p *GormPersist) RevokeAction(actionId, revokedBy string, revokedAt time.Time) (bool, error) {
	res := p.db.Model(&types.ModerationAction{}).
		Where("id = ? AND revoked_at IS NULL", actionId).
		Updates(map[string]interface{}{"revoked_at": revokedAt, "revoked_by": revokedBy})
	return res.RowsAffected > 0, res.Error
}

func (p *GormPersist) UpsertPresence(record types.PresenceRecord) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

func (p *GormPersist) GetPresence(record *types.PresenceRecord) error {
	return p.db.First(record).Error
}

func (p *GormPersist) GetOnlinePresence(roomSlug string) ([]*types.PresenceRecord, error) {
	records := make([]*types.PresenceRecord, 0)
	err := p.db.Where("room_slug = ? AND is_online = ?", roomSlug, true).Find(&records).Error
	return records, err
}

func (p *GormPersist) GetUserOnlineRooms(userId string) ([]*types.PresenceRecord, error) {
	records := make([]*types.PresenceRecord, 0)
	err := p.db.Where("user_id = ? AND is_online = ?", userId, true).Find(&records).Error
	return records, err
}

func (p *GormPersist) SetOffline(userId string, roomSlug *string, at time.Time) error {
	q := p.db.Model(&types.PresenceRecord{}).
		Where("user_id = ? AND is_online = ?", userId, true)
	if roomSlug != nil {
		q = q.Where("room_slug = ?", *roomSlug)
	}
	return q.Updates(map[string]interface{}{"is_online": false, "last_seen": at}).Error
}

func (p *GormPersist) StoreMessage(message types.Message) error {
	return p.db.Create(&message).Error
}

func (p *GormPersist) CountMessagesSince(senderId string, kind types.ChannelKind, since time.Time) (int64, error) {
	var count int64
	err := p.db.Model(&types.Message{}).
		Where("sender_id = ? AND channel_kind = ? AND created_at > ?", senderId, kind, since).
		Count(&count).Error
	return count, err
}

func (p *GormPersist) Close() error {
	return nil
}
