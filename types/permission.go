package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Permission is a closed vocabulary; free-form permission strings coming in
// via the role catalog are rejected at parse time, not at use sites.
type Permission string

const (
	PermissionKickUser       Permission = "kick_user"
	PermissionBanUser        Permission = "ban_user"
	PermissionSilenceUser    Permission = "silence_user"
	PermissionWarnUser       Permission = "warn_user"
	PermissionDeleteMessages Permission = "delete_messages"
	PermissionPinMessages    Permission = "pin_messages"
	PermissionManageRoom     Permission = "manage_room"
	PermissionAssignRoles    Permission = "assign_roles"
)

var allPermissions = []Permission{
	PermissionKickUser,
	PermissionBanUser,
	PermissionSilenceUser,
	PermissionWarnUser,
	PermissionDeleteMessages,
	PermissionPinMessages,
	PermissionManageRoom,
	PermissionAssignRoles,
}

// AllPermissions returns the full fixed vocabulary, the set a site admin holds.
func AllPermissions() PermissionSet {
	ps := make(PermissionSet, len(allPermissions))
	copy(ps, allPermissions)
	return ps
}

// ParsePermission validates a permission string at the role-catalog boundary.
func ParsePermission(s string) (Permission, error) {
	for _, p := range allPermissions {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// PermissionSet is stored as a JSON array column, it implements
// driver.Valuer / sql.Scanner the same way JSONStringMap does.
type PermissionSet []Permission

func (ps PermissionSet) Has(p Permission) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

// Union merges other into ps, deduplicated, sorted for stable output.
func (ps PermissionSet) Union(other PermissionSet) PermissionSet {
	set := make(map[Permission]struct{}, len(ps)+len(other))
	for _, p := range ps {
		set[p] = struct{}{}
	}
	for _, p := range other {
		set[p] = struct{}{}
	}
	out := make(PermissionSet, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Value return json value, implement driver.Valuer interface
func (ps PermissionSet) Value() (driver.Value, error) {
	if ps == nil {
		return nil, nil
	}
	ba, err := json.Marshal(ps)
	return string(ba), err
}

// Scan scan value into the set, implements sql.Scanner interface
func (ps *PermissionSet) Scan(val interface{}) error {
	if val == nil {
		*ps = nil
		return nil
	}
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("failed to unmarshal permission set value:", val))
	}
	t := make([]Permission, 0)
	err := json.Unmarshal(ba, &t)
	*ps = PermissionSet(t)
	return err
}

// GormDataType gorm common data type
func (PermissionSet) GormDataType() string {
	return "permissionset"
}

// GormDBDataType gorm db data type
func (PermissionSet) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
