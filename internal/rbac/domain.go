// Package rbac resolves a principal's effective permission set from role
// defaults and per-principal overrides, with a short-TTL cache in front of
// the catalog store.
package rbac

import "errors"

// Role is the closed set of account roles.
type Role string

// Known roles, ordered from most to least privileged.
const (
	RoleSuperadmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleModerator  Role = "MODERATOR"
	RoleUser       Role = "USER"
)

// ParseRole maps a stored role string onto the enum.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSuperadmin, RoleAdmin, RoleModerator, RoleUser:
		return Role(s), nil
	}
	return "", errors.New("rbac: unknown role " + s)
}

// Principal is the authenticated actor a resolution runs for. Role is fixed
// for the lifetime of a session; role changes require re-resolution.
type Principal struct {
	ID   int64
	Role Role
}

// Definition declares one permission code and the roles holding it by
// default. Codes follow "{category}.{resource}.{action}" and are never
// reused for a different meaning.
type Definition struct {
	Code         string
	Description  string
	DefaultRoles []Role
}

// Override is a per-principal exception. Presence always wins over the role
// default: granted=false removes a code even when the role grants it.
type Override struct {
	PrincipalID int64
	Code        string
	Granted     bool
}

var (
	// ErrUnknownPermission indicates a code absent from the catalog.
	ErrUnknownPermission = errors.New("rbac: unknown permission code")
	// ErrStoreUnavailable indicates the catalog store could not be reached
	// and no cached value existed to fall back on.
	ErrStoreUnavailable = errors.New("rbac: catalog store unavailable")
)
