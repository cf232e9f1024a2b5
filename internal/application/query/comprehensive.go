package query

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// ComprehensiveDTO is everything the doctor reviews before the final evaluation.
type ComprehensiveDTO struct {
	Case            CaseDTO                `json:"student"`
	Stage           StageDTO               `json:"stage_progress"`
	Handwriting     []HandwritingDTO       `json:"handwriting_analyses"`
	Tasks           []TaskDTO              `json:"tasks"`
	Summary         *SummaryDTO            `json:"assessment_summary"`
	Activities      []TrackedAssignmentDTO `json:"activities"`
	Evaluation      *EvaluationDTO         `json:"evaluation"`
	Recommendations []*RecommendationDTO   `json:"stakeholder_recommendations"`
}

// ComprehensiveHandler serves the doctor's full case view.
type ComprehensiveHandler struct {
	uow port.UnitOfWork
}

func NewComprehensiveHandler(uow port.UnitOfWork) *ComprehensiveHandler {
	return &ComprehensiveHandler{uow: uow}
}

// ComprehensiveData loads every part of the case concurrently. Any failed read
// fails the whole view.
func (h *ComprehensiveHandler) ComprehensiveData(ctx context.Context, caseID string, actor shared.Actor) (*ComprehensiveDTO, error) {
	repos := h.uow.Repositories()
	roster, err := authorize(ctx, repos, caseID, actor, shared.RoleDoctor)
	if err != nil {
		return nil, err
	}

	var (
		progress    *workflow.Progress
		analyses    []*assessment.HandwritingAnalysis
		tasks       []*assessment.Task
		summary     *assessment.Summary
		assignments []*activity.Assignment
		records     []*activity.ProgressRecord
		eval        *evaluation.FinalEvaluation
		recs        []*evaluation.Recommendation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		progress, err = repos.Progress.Get(gctx, caseID)
		return err
	})
	g.Go(func() (err error) {
		analyses, err = repos.Handwriting.ListByCase(gctx, caseID)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = repos.Tasks.ListByCase(gctx, caseID)
		return err
	})
	g.Go(func() (err error) {
		summary, err = repos.Summaries.Get(gctx, caseID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	})
	g.Go(func() (err error) {
		assignments, err = repos.Activities.ListAssignments(gctx, caseID)
		return err
	})
	g.Go(func() (err error) {
		records, err = repos.Activities.ListRecords(gctx, caseID)
		return err
	})
	g.Go(func() error {
		e, err := repos.Evaluations.Get(gctx, caseID)
		if errors.Is(err, shared.ErrNotFound) {
			e, err = nil, nil
		}
		if err != nil {
			return err
		}
		eval = e
		recs, err = repos.Recommendations.ListForSession(gctx, caseID, evaluation.CurrentSession(e))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &ComprehensiveDTO{
		Case:            NewCaseDTO(roster.Case, roster.Links),
		Stage:           NewStageDTO(progress),
		Handwriting:     make([]HandwritingDTO, len(analyses)),
		Tasks:           NewTaskDTOs(tasks),
		Summary:         NewSummaryDTO(summary),
		Activities:      NewTrackedDTOs(activity.Track(assignments, records)),
		Evaluation:      NewEvaluationDTO(eval),
		Recommendations: make([]*RecommendationDTO, len(recs)),
	}
	for i, a := range analyses {
		out.Handwriting[i] = NewHandwritingDTO(a)
	}
	for i, r := range recs {
		out.Recommendations[i] = NewRecommendationDTO(r)
	}
	return out, nil
}
