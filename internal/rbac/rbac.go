// Package rbac holds the role model: a flat set of roles with an explicit
// implies relation instead of a type hierarchy.
package rbac

type Role string
type Action string

const (
	RoleAdmin Role = "ROLE_ADMIN"
	RoleUser  Role = "ROLE_USER"
)

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// implies maps each role to the roles it carries in addition to itself.
var implies = map[Role][]Role{
	RoleAdmin: {RoleUser},
}

// Has reports whether role grants required, walking the implies relation.
func Has(role, required Role) bool {
	if role == required {
		return true
	}
	for _, granted := range implies[role] {
		if Has(granted, required) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role carries ROLE_ADMIN.
func IsAdmin(role Role) bool {
	return Has(role, RoleAdmin)
}

// Normalize maps unknown role names to the least-privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleUser:
		return Role(role)
	default:
		return RoleUser
	}
}
