package command

import (
	"context"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// OpenCaseCommand contains the intake data of a new case.
type OpenCaseCommand struct {
	Name     string
	Birthday *time.Time
	School   string
	Grade    string
	Gender   caseload.Gender
}

// CaseRegistry opens cases and manages the caregivers linked to them.
type CaseRegistry struct {
	deps Deps
}

func NewCaseRegistry(deps Deps) *CaseRegistry {
	return &CaseRegistry{deps: deps.withDefaults()}
}

// OpenCase creates a case owned by the teacher together with its stage 1 progress.
func (r *CaseRegistry) OpenCase(ctx context.Context, actor shared.Actor, cmd OpenCaseCommand) (c *caseload.Case, err error) {
	const op = "OpenCase"
	started := r.deps.now()
	ctx, span := r.deps.span(ctx, op, "", actor)
	defer func() {
		var id string
		if c != nil {
			id = c.ID
		}
		r.deps.end(span, op, id, actor, started, err)
	}()

	if actor.Role != shared.RoleTeacher {
		return nil, shared.NewDomainError("caseload", op, shared.ErrRoleNotPermitted, "only teachers can open cases")
	}

	now := r.deps.now()
	c, err = caseload.NewCase(caseload.NewCaseParams{
		ID:        r.deps.NewID(),
		Name:      cmd.Name,
		Birthday:  cmd.Birthday,
		School:    cmd.School,
		Grade:     cmd.Grade,
		Gender:    cmd.Gender,
		TeacherID: actor.UserID,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	err = r.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := repos.Cases.Create(ctx, c); err != nil {
			return err
		}
		return repos.Progress.Create(ctx, workflow.NewProgress(c.ID, now))
	})
	if err != nil {
		return nil, err
	}

	r.deps.publish(ctx, shared.CaseOpenedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventCaseOpened, c.ID, actor),
		TeacherID: actor.UserID,
	})
	return c, nil
}

// ListCases returns the cases the actor owns or is linked to.
func (r *CaseRegistry) ListCases(ctx context.Context, actor shared.Actor) ([]*caseload.Case, error) {
	return r.deps.UoW.Repositories().Cases.ListForMember(ctx, actor)
}

// GetCase returns a case with its links to any attached actor.
func (r *CaseRegistry) GetCase(ctx context.Context, caseID string, actor shared.Actor) (caseload.Roster, error) {
	roster, err := caseload.LoadRoster(ctx, r.deps.UoW.Repositories().Cases, caseID)
	if err != nil {
		return caseload.Roster{}, err
	}
	if err := roster.Authorize(actor); err != nil {
		return caseload.Roster{}, err
	}
	return roster, nil
}

// LinkCaregiver attaches a doctor or parent to the teacher's case.
func (r *CaseRegistry) LinkCaregiver(ctx context.Context, caseID string, actor shared.Actor, userID string, role shared.Role) (link caseload.Link, err error) {
	const op = "LinkCaregiver"
	started := r.deps.now()
	ctx, span := r.deps.span(ctx, op, caseID, actor)
	defer func() { r.deps.end(span, op, caseID, actor, started, err) }()

	err = r.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		roster, err := caseload.LoadRoster(ctx, repos.Cases, caseID)
		if err != nil {
			return err
		}
		if err := roster.AuthorizeOwner(actor); err != nil {
			return err
		}
		if _, ok := roster.FindLink(userID); ok || userID == roster.Case.TeacherID {
			return shared.ErrLinkExists
		}
		link, err = caseload.NewLink(caseID, userID, role, r.deps.now())
		if err != nil {
			return err
		}
		return repos.Cases.AddLink(ctx, link)
	})
	return link, err
}

// UnlinkCaregiver detaches a caregiver from the teacher's case.
func (r *CaseRegistry) UnlinkCaregiver(ctx context.Context, caseID string, actor shared.Actor, userID string) (err error) {
	const op = "UnlinkCaregiver"
	started := r.deps.now()
	ctx, span := r.deps.span(ctx, op, caseID, actor)
	defer func() { r.deps.end(span, op, caseID, actor, started, err) }()

	return r.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		roster, err := caseload.LoadRoster(ctx, repos.Cases, caseID)
		if err != nil {
			return err
		}
		if err := roster.AuthorizeOwner(actor); err != nil {
			return err
		}
		return repos.Cases.RemoveLink(ctx, caseID, userID)
	})
}
