package permissions

import "time"

// RoleSuper is the single role that bypasses every permission check. It is
// never represented as stored rows and no override can demote it.
const RoleSuper = "ceo"

// Identity carries the user fields the resolver reads. Department is empty
// for users without one.
type Identity struct {
	ID         int64
	Role       string
	Department string
}

// IsSuper reports whether the identity holds the super role.
func (id Identity) IsSuper() bool {
	return id.Role == RoleSuper
}

// IsZero reports whether the identity refers to no user.
func (id Identity) IsZero() bool {
	return id.ID == 0
}

// Override is a per-user grant or denial of a single feature. At most one
// row exists per (user, feature key).
type Override struct {
	UserID     int64
	FeatureKey string
	Granted    bool
	GrantedBy  int64
	GrantedAt  time.Time
}

// RoleDefault is the fallback value applied to every user of a role.
type RoleDefault struct {
	Role       string
	FeatureKey string
	Granted    bool
}

// RoleDepartmentDefault is the fallback value applied to users sharing both
// a role and a department. It outranks the role-only layer.
type RoleDepartmentDefault struct {
	Role       string
	Department string
	FeatureKey string
	Granted    bool
}

// RoleDepartment identifies a template combination.
type RoleDepartment struct {
	Role       string
	Department string
}

// Template pairs a role-department combination with its full permission map.
type Template struct {
	Role        string
	Department  string
	Permissions map[string]bool
}
