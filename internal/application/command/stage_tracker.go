package command

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// ══════════════════════════════════════════════════════════════════════════════
// STAGE TRACKER
// Role-gated, strictly ordered stage advancement.
// ══════════════════════════════════════════════════════════════════════════════

// StageResult is the stage state after an operation.
type StageResult struct {
	CaseID          string
	CurrentStage    int
	CompletedStages []int
}

func stageResult(p *workflow.Progress) StageResult {
	return StageResult{
		CaseID:          p.CaseID,
		CurrentStage:    p.CurrentStage.Int(),
		CompletedStages: p.CompletedStages.Ints(),
	}
}

// StageTracker completes and reports workflow stages.
type StageTracker struct {
	deps Deps
}

// NewStageTracker creates a StageTracker. The role table must already be validated.
func NewStageTracker(deps Deps) *StageTracker {
	return &StageTracker{deps: deps.withDefaults()}
}

// CompleteStage marks the current stage complete and advances the case.
func (t *StageTracker) CompleteStage(ctx context.Context, caseID string, actor shared.Actor) (res StageResult, err error) {
	const op = "CompleteStage"
	started := t.deps.now()
	ctx, span := t.deps.span(ctx, op, caseID, actor)
	defer func() { t.deps.end(span, op, caseID, actor, started, err) }()

	var completed workflow.Stage
	err = t.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, nil); err != nil {
			return err
		}
		completed = s.progress.CurrentStage
		if err := s.progress.Complete(actor.Role, t.deps.Roles, t.deps.now()); err != nil {
			return err
		}
		if err := repos.Progress.Save(ctx, s.progress); err != nil {
			return err
		}
		res = stageResult(s.progress)
		return nil
	})
	if err != nil {
		return StageResult{}, err
	}

	t.deps.publish(ctx, shared.StageCompletedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventStageCompleted, caseID, actor),
		CompletedStage: completed.Int(),
		CurrentStage:   res.CurrentStage,
	})
	return res, nil
}

// Get returns the stage state of a case to any attached actor.
func (t *StageTracker) Get(ctx context.Context, caseID string, actor shared.Actor) (StageResult, error) {
	s, err := loadScope(ctx, t.deps.UoW.Repositories(), caseID, false)
	if err != nil {
		return StageResult{}, err
	}
	if err := s.authorize("GetStage", actor, nil); err != nil {
		return StageResult{}, err
	}
	return stageResult(s.progress), nil
}

// resetForNewSession moves the case back for another therapy cycle. It must
// run inside the archiver's transaction with the progress row locked.
func resetForNewSession(ctx context.Context, repos port.Repositories, p *workflow.Progress, deps Deps) error {
	if err := p.ResetForNewSession(workflow.RestartStage, workflow.RestartPreservedSet, deps.now()); err != nil {
		return err
	}
	return repos.Progress.Save(ctx, p)
}
