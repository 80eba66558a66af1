package domain

import (
	"fmt"
	"sort"
	"time"
)

// Built-in role names.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
)

// Permission is a capability a role may hold. The set is closed: unknown
// strings are rejected by ParsePermission.
type Permission string

const (
	PermRegistrationCreate Permission = "registration:create"
	PermRegistrationRead   Permission = "registration:read"
	PermBadgePrint         Permission = "badge:print"
	PermCheckinScan        Permission = "checkin:scan"
	PermServerModeManage   Permission = "server_mode:manage"
	PermUserManage         Permission = "user:manage"
)

// AllPermissions lists every known permission.
func AllPermissions() []Permission {
	return []Permission{
		PermRegistrationCreate,
		PermRegistrationRead,
		PermBadgePrint,
		PermCheckinScan,
		PermServerModeManage,
		PermUserManage,
	}
}

// ParsePermission converts a stored string into a Permission.
func ParsePermission(s string) (Permission, error) {
	for _, p := range AllPermissions() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown permission %q", ErrValidation, s)
}

// PermissionSet is the capability set owned by a role.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from perms.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissionSet parses stored permission strings, failing on the first unknown one.
func ParsePermissionSet(raw []string) (PermissionSet, error) {
	set := make(PermissionSet, len(raw))
	for _, s := range raw {
		p, err := ParsePermission(s)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Strings returns the set as sorted strings for storage.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// Role owns a permission set.
type Role struct {
	Name        string        `json:"name"`
	Permissions PermissionSet `json:"-"`
}

// DefaultRoles are installed by the seeder.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleSuperadmin, Permissions: NewPermissionSet(AllPermissions()...)},
		{Name: RoleAdmin, Permissions: NewPermissionSet(
			PermRegistrationCreate, PermRegistrationRead, PermBadgePrint,
			PermCheckinScan, PermServerModeManage,
		)},
		{Name: RoleStaff, Permissions: NewPermissionSet(
			PermRegistrationCreate, PermRegistrationRead, PermBadgePrint, PermCheckinScan,
		)},
	}
}

// User models an authenticated actor in the system.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
