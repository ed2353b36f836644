package types

import "time"

type User struct {
	Id         string    `json:"id" gorm:"primaryKey"` // external account id, unique!
	Nick       string    `json:"nick"`                 // should also be unique
	Avatar     string    `json:"avatar"`               // avatar url
	SiteAdmin  bool      `json:"site_admin"`  // site-wide administrator flag, set by the user directory
	LastOnline time.Time `json:"last_online"` // last seen online
}

// Role is read-mostly catalog data, created and edited by the external
// role-management collaborator.
type Role struct {
	Name             string        `json:"name" gorm:"primaryKey"`
	Priority         int           `json:"priority"`          // higher = more powerful, always < AdminPriority
	IsAdministrative bool          `json:"is_administrative"` // informational only
	Permissions      PermissionSet `json:"permissions"`
	CreatedAt        time.Time     `json:"-"`
	UpdatedAt        time.Time     `json:"-"`
}

// UserRoleAssignment is the many-to-many edge between users and roles.
type UserRoleAssignment struct {
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	RoleName  string    `json:"role_name" gorm:"primaryKey"`
	CreatedAt time.Time `json:"-"`
}

// AdminPriority is the reserved priority of the site-admin pseudo-role,
// guaranteed to outrank every catalog role.
const AdminPriority = 999

// EffectivePrincipal is derived per request, never stored.
type EffectivePrincipal struct {
	UserId      string        `json:"user_id"`
	Permissions PermissionSet `json:"permissions"`
	Priority    int           `json:"priority"`
}

func (p EffectivePrincipal) Can(perm Permission) bool {
	return p.Permissions.Has(perm)
}
