package command

import (
	"context"
	"errors"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ActivityLifecycleManager handles stage 5 assignments and stage 6 progress.
type ActivityLifecycleManager struct {
	deps Deps
}

func NewActivityLifecycleManager(deps Deps) *ActivityLifecycleManager {
	return &ActivityLifecycleManager{deps: deps.withDefaults()}
}

// AssignActivities creates active assignments owned by the doctor. The case
// must have an assessment summary. Either every activity is created or none.
func (m *ActivityLifecycleManager) AssignActivities(ctx context.Context, caseID string, actor shared.Actor, inputs []activity.AssignmentInput) (created []*activity.Assignment, err error) {
	const op = "AssignActivities"
	started := m.deps.now()
	ctx, span := m.deps.span(ctx, op, caseID, actor)
	defer func() { m.deps.end(span, op, caseID, actor, started, err) }()

	if len(inputs) == 0 {
		return nil, shared.NewDomainError("activity", op, shared.ErrInvalidInput, "at least one activity is required")
	}

	err = m.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleDoctor), workflow.StageActivityAssignment); err != nil {
			return err
		}
		if _, err := repos.Summaries.Get(ctx, caseID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.ErrStage4Incomplete
			}
			return err
		}

		now := m.deps.now()
		created = make([]*activity.Assignment, 0, len(inputs))
		for _, in := range inputs {
			a, err := activity.NewAssignment(m.deps.NewID(), caseID, in, actor.UserID, now)
			if err != nil {
				return err
			}
			created = append(created, a)
		}
		return repos.Activities.CreateAssignments(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateAssignment patches an assignment of the case. Only the doctor who
// created it may.
func (m *ActivityLifecycleManager) UpdateAssignment(ctx context.Context, caseID, assignmentID string, actor shared.Actor, patch activity.AssignmentPatch) (updated *activity.Assignment, err error) {
	const op = "UpdateAssignment"
	started := m.deps.now()
	ctx, span := m.deps.span(ctx, op, caseID, actor)
	defer func() { m.deps.end(span, op, caseID, actor, started, err) }()

	err = m.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		a, err := assignmentOf(ctx, repos, caseID, assignmentID)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleDoctor),
			workflow.StageActivityAssignment, workflow.StageActivityTracking); err != nil {
			return err
		}
		if a.DoctorID != actor.UserID {
			return shared.ErrNotAssignmentOwner
		}
		if err := a.Apply(patch, m.deps.now()); err != nil {
			return err
		}
		if err := repos.Activities.SaveAssignment(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordProgress stores a session report against an assignment of the case.
// The performer is the actor's role.
func (m *ActivityLifecycleManager) RecordProgress(ctx context.Context, caseID, assignmentID string, actor shared.Actor, in activity.ProgressInput) (record *activity.ProgressRecord, err error) {
	const op = "RecordProgress"
	started := m.deps.now()
	ctx, span := m.deps.span(ctx, op, caseID, actor)
	defer func() { m.deps.end(span, op, caseID, actor, started, err) }()

	err = m.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		a, err := assignmentOf(ctx, repos, caseID, assignmentID)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleTeacher, shared.RoleParent), workflow.StageActivityTracking); err != nil {
			return err
		}
		if !a.IsActive {
			return shared.ErrAssignmentInactive
		}
		record, err = activity.NewProgressRecord(m.deps.NewID(), a, actor, in, m.deps.now())
		if err != nil {
			return err
		}
		return repos.Activities.CreateRecord(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	m.deps.Logger.Debug("progress recorded", logger.AssignmentID(assignmentID), logger.String("status", string(record.Status)))
	return record, nil
}

// UpdateProgress patches a record of the case. Only the original recorder may.
func (m *ActivityLifecycleManager) UpdateProgress(ctx context.Context, caseID, recordID string, actor shared.Actor, patch activity.ProgressPatch) (record *activity.ProgressRecord, err error) {
	const op = "UpdateProgress"
	started := m.deps.now()
	ctx, span := m.deps.span(ctx, op, caseID, actor)
	defer func() { m.deps.end(span, op, caseID, actor, started, err) }()

	err = m.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		r, err := repos.Activities.GetRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if r.CaseID != caseID {
			return shared.ErrRecordNotFound
		}
		if err := s.authorize(op, actor, roles(shared.RoleTeacher, shared.RoleParent), workflow.StageActivityTracking); err != nil {
			return err
		}
		if r.RecorderID != actor.UserID || r.Performer != actor.Role {
			return shared.ErrNotRecorder
		}
		if err := r.Apply(patch, m.deps.now()); err != nil {
			return err
		}
		if err := repos.Activities.SaveRecord(ctx, r); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// assignmentOf loads an assignment and hides assignments of other cases.
func assignmentOf(ctx context.Context, repos port.Repositories, caseID, assignmentID string) (*activity.Assignment, error) {
	a, err := repos.Activities.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.CaseID != caseID {
		return nil, shared.ErrAssignmentNotFound
	}
	return a, nil
}
