package command

import (
	"context"
	"errors"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// FinalEvaluationController handles the stage 7 evaluation.
type FinalEvaluationController struct {
	deps Deps
}

func NewFinalEvaluationController(deps Deps) *FinalEvaluationController {
	return &FinalEvaluationController{deps: deps.withDefaults()}
}

// Get returns the live evaluation to any attached actor. A case without an
// evaluation yields nil and no error.
func (c *FinalEvaluationController) Get(ctx context.Context, caseID string, actor shared.Actor) (*evaluation.FinalEvaluation, error) {
	repos := c.deps.UoW.Repositories()
	s, err := loadScope(ctx, repos, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize("GetEvaluation", actor, nil); err != nil {
		return nil, err
	}
	e, err := repos.Evaluations.Get(ctx, caseID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

// Upsert creates the evaluation at session 1 or partially updates the live one.
func (c *FinalEvaluationController) Upsert(ctx context.Context, caseID string, actor shared.Actor, fields evaluation.Fields) (e *evaluation.FinalEvaluation, err error) {
	const op = "UpsertEvaluation"
	started := c.deps.now()
	ctx, span := c.deps.span(ctx, op, caseID, actor)
	defer func() { c.deps.end(span, op, caseID, actor, started, err) }()

	err = c.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleDoctor), workflow.StageFinalEvaluation); err != nil {
			return err
		}

		now := c.deps.now()
		existing, err := repos.Evaluations.Get(ctx, caseID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			e, err = evaluation.New(c.deps.NewID(), caseID, actor.UserID, fields, now)
			if err != nil {
				return err
			}
			return repos.Evaluations.Create(ctx, e)
		case err != nil:
			return err
		}
		if err := existing.Apply(fields, now); err != nil {
			return err
		}
		e = existing
		return repos.Evaluations.Save(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Complete closes the case. Only the doctor who wrote the evaluation may.
func (c *FinalEvaluationController) Complete(ctx context.Context, caseID string, actor shared.Actor) (e *evaluation.FinalEvaluation, err error) {
	const op = "CompleteEvaluation"
	started := c.deps.now()
	ctx, span := c.deps.span(ctx, op, caseID, actor)
	defer func() { c.deps.end(span, op, caseID, actor, started, err) }()

	err = c.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleDoctor), workflow.StageFinalEvaluation); err != nil {
			return err
		}
		e, err = repos.Evaluations.Get(ctx, caseID)
		if err != nil {
			return err
		}
		if e.DoctorID != actor.UserID {
			return shared.NewDomainError("evaluation", op, shared.ErrRoleNotPermitted, "only the evaluating doctor can complete the case")
		}
		if err := e.Complete(c.deps.now()); err != nil {
			return err
		}
		return repos.Evaluations.Save(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	c.deps.publish(ctx, shared.CaseCompletedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventCaseCompleted, caseID, actor),
		CompletedAt: *e.CompletionDate,
	})
	return e, nil
}
