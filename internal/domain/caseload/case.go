// Package caseload models a therapy case (a student) and the caregivers attached to it.
//
// A case is owned by the teacher who opened it. Doctors and parents are attached
// through links. Every workflow operation authorizes its actor against the case
// roster defined here.
package caseload

import (
	"strings"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Gender of the student, as recorded at intake.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// IsValid checks the gender value. Empty is allowed.
func (g Gender) IsValid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

// Case is the student whose therapy is being tracked.
type Case struct {
	ID        string
	Name      string
	Birthday  *time.Time
	School    string
	Grade     string
	Gender    Gender
	TeacherID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCaseParams contains the intake fields of a case.
type NewCaseParams struct {
	ID        string
	Name      string
	Birthday  *time.Time
	School    string
	Grade     string
	Gender    Gender
	TeacherID string
	Now       time.Time
}

// NewCase validates intake data and creates a case owned by the teacher.
func NewCase(p NewCaseParams) (*Case, error) {
	if !shared.IsUUID(p.ID) {
		return nil, shared.NewDomainError("caseload", "NewCase", shared.ErrInvalidInput, "case id must be a UUID")
	}
	name := strings.TrimSpace(p.Name)
	if err := shared.RequireText("caseload", "name", name); err != nil {
		return nil, err
	}
	if err := shared.RequireText("caseload", "teacher id", p.TeacherID); err != nil {
		return nil, err
	}
	if !p.Gender.IsValid() {
		return nil, shared.Errorf("caseload", "NewCase", shared.ErrInvalidInput, "unknown gender %q", p.Gender)
	}
	if p.Birthday != nil && p.Birthday.After(p.Now) {
		return nil, shared.NewDomainError("caseload", "NewCase", shared.ErrInvalidInput, "birthday cannot be in the future")
	}
	return &Case{
		ID:        p.ID,
		Name:      name,
		Birthday:  p.Birthday,
		School:    strings.TrimSpace(p.School),
		Grade:     strings.TrimSpace(p.Grade),
		Gender:    p.Gender,
		TeacherID: p.TeacherID,
		CreatedAt: p.Now,
		UpdatedAt: p.Now,
	}, nil
}

// Link attaches a doctor or parent to a case.
type Link struct {
	CaseID    string
	UserID    string
	Role      shared.Role
	CreatedAt time.Time
}

// NewLink validates and creates a link.
func NewLink(caseID, userID string, role shared.Role, now time.Time) (Link, error) {
	if role != shared.RoleDoctor && role != shared.RoleParent {
		return Link{}, shared.ErrInvalidLinkRole
	}
	if err := shared.RequireText("caseload", "user id", userID); err != nil {
		return Link{}, err
	}
	return Link{CaseID: caseID, UserID: userID, Role: role, CreatedAt: now}, nil
}

// Roster is a case together with its links. It answers authorization questions.
type Roster struct {
	Case  *Case
	Links []Link
}

// IsOwner reports whether the actor is the teacher who owns the case.
func (r Roster) IsOwner(a shared.Actor) bool {
	return a.Role == shared.RoleTeacher && a.UserID == r.Case.TeacherID
}

// IsAttached reports whether the actor owns the case or is linked to it with their role.
func (r Roster) IsAttached(a shared.Actor) bool {
	if r.IsOwner(a) {
		return true
	}
	for _, l := range r.Links {
		if l.UserID == a.UserID && l.Role == a.Role {
			return true
		}
	}
	return false
}

// Authorize checks that the actor is attached to the case and holds one of the roles.
// An empty roles list accepts any attached actor.
func (r Roster) Authorize(a shared.Actor, roles ...shared.Role) error {
	if len(roles) > 0 && !hasRole(roles, a.Role) {
		return shared.Errorf("caseload", "Authorize", shared.ErrRoleNotPermitted,
			"role %s is not permitted for this operation", a.Role)
	}
	if !r.IsAttached(a) {
		return shared.ErrNotCaseMember
	}
	return nil
}

// AuthorizeOwner checks that the actor is the owning teacher.
func (r Roster) AuthorizeOwner(a shared.Actor) error {
	if !r.IsOwner(a) {
		return shared.ErrNotCaseOwner
	}
	return nil
}

// FindLink returns the link for a user, if any.
func (r Roster) FindLink(userID string) (Link, bool) {
	for _, l := range r.Links {
		if l.UserID == userID {
			return l, true
		}
	}
	return Link{}, false
}

func hasRole(roles []shared.Role, role shared.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
