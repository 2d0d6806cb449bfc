// Package roster derives the rows, selection state and summaries shown by the
// classroom dashboard from plain snapshots of sections, students and teachers.
//
// Every function in this package is pure: callers pass an explicit Session and
// snapshot and decide themselves whether to cache the result.
package roster

import "strings"

// Role identifies what part of the roster a caller may see.
type Role string

// Supported roles.
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
)

// ParseRole normalises free-form role strings coming from token claims.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleTeacher:
		return RoleTeacher
	case RoleParent:
		return RoleParent
	case RoleStudent:
		return RoleStudent
	default:
		return Role(strings.ToLower(strings.TrimSpace(value)))
	}
}

// Known reports whether the role is one the roster has a visibility policy for.
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleParent, RoleStudent:
		return true
	}
	return false
}

// Session is the read-only caller context every derivation receives.
type Session struct {
	Role   Role
	UserID uint
	// SectionID is the caller's own section (students).
	SectionID *uint
	// ChildSections holds the sections of a parent's children, resolved by
	// Snapshot.Scope.
	ChildSections []uint
	// AssignedSection is the name of the section a teacher owns, empty when none.
	AssignedSection string
}

// IsAdmin reports whether the session has unrestricted roster access.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
