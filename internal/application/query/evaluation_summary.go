package query

import (
	"context"
	"errors"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// EvaluationSummaryDTO is the role-dependent view of the final evaluation.
// Doctors get Full; teachers and parents get Reduced and their own recommendation.
type EvaluationSummaryDTO struct {
	Exists           bool                  `json:"exists"`
	Full             *EvaluationDTO        `json:"evaluation,omitempty"`
	Reduced          *ReducedEvaluationDTO `json:"summary,omitempty"`
	MyRecommendation *RecommendationDTO    `json:"my_recommendation,omitempty"`
}

// EvaluationSummaryHandler serves the evaluation summary.
type EvaluationSummaryHandler struct {
	uow port.UnitOfWork
}

func NewEvaluationSummaryHandler(uow port.UnitOfWork) *EvaluationSummaryHandler {
	return &EvaluationSummaryHandler{uow: uow}
}

// Summary returns the evaluation view for the actor.
func (h *EvaluationSummaryHandler) Summary(ctx context.Context, caseID string, actor shared.Actor) (*EvaluationSummaryDTO, error) {
	repos := h.uow.Repositories()
	if _, err := authorize(ctx, repos, caseID, actor); err != nil {
		return nil, err
	}

	e, err := repos.Evaluations.Get(ctx, caseID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		e = nil
	}

	out := &EvaluationSummaryDTO{Exists: e != nil}
	if actor.Role == shared.RoleDoctor {
		out.Full = NewEvaluationDTO(e)
		return out, nil
	}
	if e != nil {
		out.Reduced = NewReducedEvaluationDTO(e.Reduced())
	}

	rec, err := repos.Recommendations.Get(ctx, caseID, actor.UserID, evaluation.CurrentSession(e))
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		out.MyRecommendation = NewRecommendationDTO(rec)
	}
	return out, nil
}
