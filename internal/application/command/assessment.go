package command

import (
	"context"
	"errors"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// AssessmentEngine computes the stage 4 summary.
type AssessmentEngine struct {
	deps Deps
}

func NewAssessmentEngine(deps Deps) *AssessmentEngine {
	return &AssessmentEngine{deps: deps.withDefaults()}
}

// CreateOrUpdateSummary computes the percentage and risk from scored tasks and
// replaces any earlier summary of the case.
func (e *AssessmentEngine) CreateOrUpdateSummary(ctx context.Context, caseID string, actor shared.Actor, in assessment.SummaryInput) (summary *assessment.Summary, err error) {
	const op = "CreateOrUpdateSummary"
	started := e.deps.now()
	ctx, span := e.deps.span(ctx, op, caseID, actor)
	defer func() { e.deps.end(span, op, caseID, actor, started, err) }()

	err = e.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleDoctor), workflow.StageAssessment); err != nil {
			return err
		}
		tasks, err := repos.Tasks.ListByCase(ctx, caseID)
		if err != nil {
			return err
		}
		summary, err = assessment.Summarize(caseID, tasks, in, actor.UserID, e.deps.now())
		if err != nil {
			return err
		}
		return repos.Summaries.Upsert(ctx, summary)
	})
	if err != nil {
		return nil, err
	}

	e.deps.publish(ctx, shared.SummaryRecordedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventSummaryRecorded, caseID, actor),
		Percentage: summary.PercentageScore,
		RiskLevel:  string(summary.RiskLevel),
	})
	return summary, nil
}

// GetSummary returns the summary of a case to any attached actor. A case
// without a summary yields nil and no error.
func (e *AssessmentEngine) GetSummary(ctx context.Context, caseID string, actor shared.Actor) (*assessment.Summary, error) {
	repos := e.deps.UoW.Repositories()
	s, err := loadScope(ctx, repos, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize("GetSummary", actor, nil); err != nil {
		return nil, err
	}
	summary, err := repos.Summaries.Get(ctx, caseID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return summary, err
}
