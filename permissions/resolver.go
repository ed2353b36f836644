// Package permissions computes effective principals from the role catalog.
// The site-admin special case lives here and only here, every consumer of
// effective priority and permissions gets admin semantics for free.
package permissions

import (
	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/types"
)

type Resolver struct {
	persister persistence.Persister
	cfg       *config.Config
}

func NewResolver(persister persistence.Persister, cfg *config.Config) *Resolver {
	return &Resolver{persister: persister, cfg: cfg}
}

// Resolve computes the union of all assigned roles plus the site-admin
// override. Unknown users are not an error, they resolve to the zero
// principal (no permissions, priority 0).
func (r *Resolver) Resolve(userId string) (types.EffectivePrincipal, error) {
	principal := types.EffectivePrincipal{
		UserId:      userId,
		Permissions: types.PermissionSet{},
	}
	if userId == "" {
		return principal, nil
	}

	user := types.User{Id: userId}
	err := r.persister.GetUser(&user)
	if err != nil && !persistence.IsNotFound(err) {
		return principal, err
	}
	siteAdmin := user.SiteAdmin || userId == r.cfg.AdminUser

	roles, err := r.persister.GetUserRoles(userId)
	if err != nil {
		return principal, err
	}
	for _, role := range roles {
		if role.Priority > principal.Priority {
			principal.Priority = role.Priority
		}
		principal.Permissions = principal.Permissions.Union(role.Permissions)
	}

	if siteAdmin {
		// a site admin with no catalog role still gets the full set
		if types.AdminPriority > principal.Priority {
			principal.Priority = types.AdminPriority
		}
		principal.Permissions = principal.Permissions.Union(types.AllPermissions())
	}
	return principal, nil
}
