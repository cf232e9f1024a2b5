package memory

import (
	"context"
	"maps"
	"slices"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

type taskRepo struct{ a access }

func (r *taskRepo) CreateBatch(_ context.Context, tasks []*assessment.Task) error {
	return r.a.write(func(s *state) error {
		for _, t := range tasks {
			if _, ok := s.tasks[t.ID]; ok {
				return shared.NewDomainError("assessment", "CreateTasks", shared.ErrDuplicateRecord, "task already exists")
			}
		}
		for _, t := range tasks {
			s.tasks[t.ID] = *t
			s.insertOrder(t.ID)
		}
		return nil
	})
}

func (r *taskRepo) ListByCase(_ context.Context, caseID string) ([]*assessment.Task, error) {
	out := []*assessment.Task{}
	err := r.a.read(func(s *state) error {
		for _, t := range s.tasks {
			if t.CaseID == caseID {
				out = append(out, &t)
			}
		}
		slices.SortFunc(out, func(x, y *assessment.Task) int { return int(s.order[x.ID] - s.order[y.ID]) })
		return nil
	})
	return out, err
}

func (r *taskRepo) SaveScores(_ context.Context, tasks []*assessment.Task) error {
	return r.a.write(func(s *state) error {
		for _, t := range tasks {
			if _, ok := s.tasks[t.ID]; !ok {
				return shared.ErrTaskNotFound
			}
		}
		for _, t := range tasks {
			s.tasks[t.ID] = *t
		}
		return nil
	})
}

type summaryRepo struct{ a access }

func (r *summaryRepo) Upsert(_ context.Context, sum *assessment.Summary) error {
	return r.a.write(func(s *state) error {
		next := *sum
		if prev, ok := s.summaries[sum.CaseID]; ok {
			next.CreatedAt = prev.CreatedAt
		}
		s.summaries[sum.CaseID] = next
		return nil
	})
}

func (r *summaryRepo) Get(_ context.Context, caseID string) (*assessment.Summary, error) {
	var out *assessment.Summary
	err := r.a.read(func(s *state) error {
		sum, ok := s.summaries[caseID]
		if !ok {
			return shared.ErrSummaryNotFound
		}
		out = &sum
		return nil
	})
	return out, err
}

type handwritingRepo struct{ a access }

func (r *handwritingRepo) Create(_ context.Context, h *assessment.HandwritingAnalysis) error {
	return r.a.write(func(s *state) error {
		v := *h
		v.LetterCounts = maps.Clone(h.LetterCounts)
		s.handwriting[h.ID] = v
		s.insertOrder(h.ID)
		return nil
	})
}

func (r *handwritingRepo) ListByCase(_ context.Context, caseID string) ([]*assessment.HandwritingAnalysis, error) {
	out := []*assessment.HandwritingAnalysis{}
	err := r.a.read(func(s *state) error {
		for _, h := range s.handwriting {
			if h.CaseID == caseID {
				h.LetterCounts = maps.Clone(h.LetterCounts)
				out = append(out, &h)
			}
		}
		slices.SortFunc(out, func(x, y *assessment.HandwritingAnalysis) int { return int(s.order[y.ID] - s.order[x.ID]) })
		return nil
	})
	return out, err
}
