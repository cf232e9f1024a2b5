// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID reports whether s looks like a UUID.
func IsUUID(s string) bool {
	return uuidRegex.MatchString(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// Roles and actors
// ═══════════════════════════════════════════════════════════════════════════

// Role is the caregiver role of the user performing an operation.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleDoctor  Role = "doctor"
	RoleParent  Role = "parent"
)

// AllRoles lists every known role.
var AllRoles = []Role{RoleTeacher, RoleDoctor, RoleParent}

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleTeacher, RoleDoctor, RoleParent:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", Errorf("shared", "ParseRole", ErrInvalidInput, "unknown role %q", s)
	}
	return r, nil
}

// Actor identifies who performs an operation. It is passed explicitly into
// every core operation; the core never reads ambient authentication state.
type Actor struct {
	UserID string
	Role   Role
}

// NewActor creates a validated actor.
func NewActor(userID string, role Role) (Actor, error) {
	if strings.TrimSpace(userID) == "" {
		return Actor{}, NewDomainError("shared", "NewActor", ErrInvalidInput, "user id is required")
	}
	if !role.IsValid() {
		return Actor{}, Errorf("shared", "NewActor", ErrInvalidInput, "unknown role %q", role)
	}
	return Actor{UserID: userID, Role: role}, nil
}

// Is reports whether the actor has the given role.
func (a Actor) Is(role Role) bool {
	return a.Role == role
}

// ═══════════════════════════════════════════════════════════════════════════
// Range checks
// ═══════════════════════════════════════════════════════════════════════════

// InRange reports whether lo <= v <= hi.
func InRange[T ~int | ~float64](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// RequireRange returns an ErrOutOfRange error naming the field when v is outside [lo, hi].
func RequireRange(domain, field string, v, lo, hi int) error {
	if InRange(v, lo, hi) {
		return nil
	}
	return Errorf(domain, "Validate", ErrOutOfRange, "%s must be between %d and %d, got %d", field, lo, hi, v)
}

// RequireText returns an ErrInvalidInput error when s is blank.
func RequireText(domain, field, s string) error {
	if strings.TrimSpace(s) == "" {
		return Errorf(domain, "Validate", ErrInvalidInput, "%s is required", field)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Time
// ═══════════════════════════════════════════════════════════════════════════

// Clock abstracts the current time so tests can pin it.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC, truncated to microseconds to match
// the resolution of the relational store.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Date truncates t to a calendar day in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
