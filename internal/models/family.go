package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is a member's role within a family
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

// Permission is an access level required by an operation.
// Levels nest: read ⊆ write ⊆ admin.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin:  {PermissionRead: true, PermissionWrite: true, PermissionAdmin: true},
	RoleMember: {PermissionRead: true, PermissionWrite: true},
	RoleViewer: {PermissionRead: true},
}

// Can reports whether the role grants the permission
func (r Role) Can(p Permission) bool {
	return rolePermissions[r][p]
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Family is the tenant unit that scopes all financial data
type Family struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy int64  `json:"createdBy"`
	// DefaultForUserID is set when the family was provisioned automatically for a user
	DefaultForUserID *int64    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// FamilyMember represents the relationship between a user and a family
type FamilyMember struct {
	ID       int64      `json:"id"`
	FamilyID int64      `json:"familyId"`
	UserID   int64      `json:"userId"`
	Role     Role       `json:"role"`
	IsActive bool       `json:"isActive"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

// MemberWithUser is a membership joined with the member's profile
type MemberWithUser struct {
	FamilyMember
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FamilyMembership is a family as seen by one of its members
type FamilyMembership struct {
	Family
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// FamilyContext is the acting family and the caller's role in it
type FamilyContext struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Can reports whether the caller's role in this family grants p
func (f *FamilyContext) Can(p Permission) bool {
	return f != nil && f.Role.Can(p)
}

// AccessContext is the resolved (user, family, role) triple for a request
type AccessContext struct {
	User   *User         `json:"user"`
	Family FamilyContext `json:"family"`
}
