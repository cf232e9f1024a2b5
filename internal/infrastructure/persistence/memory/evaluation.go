package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

type evaluationRepo struct{ a access }

func (r *evaluationRepo) Get(_ context.Context, caseID string) (*evaluation.FinalEvaluation, error) {
	var out *evaluation.FinalEvaluation
	err := r.a.read(func(s *state) error {
		e, ok := s.evaluations[caseID]
		if !ok {
			return shared.ErrEvaluationNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *evaluationRepo) Create(_ context.Context, e *evaluation.FinalEvaluation) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.evaluations[e.CaseID]; ok {
			return shared.NewDomainError("evaluation", "Create", shared.ErrDuplicateRecord, "evaluation already exists")
		}
		s.evaluations[e.CaseID] = *e
		return nil
	})
}

func (r *evaluationRepo) Save(_ context.Context, e *evaluation.FinalEvaluation) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.evaluations[e.CaseID]; !ok {
			return shared.ErrEvaluationNotFound
		}
		s.evaluations[e.CaseID] = *e
		return nil
	})
}

type recommendationRepo struct{ a access }

func (r *recommendationRepo) Get(_ context.Context, caseID, stakeholderID string, session int) (*evaluation.Recommendation, error) {
	var out *evaluation.Recommendation
	err := r.a.read(func(s *state) error {
		rec, ok := s.recommendations[recKey{caseID, stakeholderID, session}]
		if !ok {
			return shared.ErrRecommendationNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r *recommendationRepo) Upsert(_ context.Context, rec *evaluation.Recommendation) error {
	return r.a.write(func(s *state) error {
		key := recKey{rec.CaseID, rec.StakeholderID, rec.TherapySessionNumber}
		next := *rec
		if prev, ok := s.recommendations[key]; ok {
			next.ID = prev.ID
			next.CreatedAt = prev.CreatedAt
		}
		s.recommendations[key] = next
		return nil
	})
}

func (r *recommendationRepo) ListForSession(_ context.Context, caseID string, session int) ([]*evaluation.Recommendation, error) {
	out := []*evaluation.Recommendation{}
	err := r.a.read(func(s *state) error {
		for k, rec := range s.recommendations {
			if k.caseID == caseID && k.session == session {
				out = append(out, &rec)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(x, y *evaluation.Recommendation) int {
		if c := strings.Compare(string(x.StakeholderType), string(y.StakeholderType)); c != 0 {
			return c
		}
		return strings.Compare(x.StakeholderID, y.StakeholderID)
	})
	return out, err
}
