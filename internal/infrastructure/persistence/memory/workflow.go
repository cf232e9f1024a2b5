package memory

import (
	"context"
	"slices"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

type progressRepo struct{ a access }

func copyProgress(p workflow.Progress) *workflow.Progress {
	p.CompletedStages = slices.Clone(p.CompletedStages)
	if p.CompletedStages == nil {
		p.CompletedStages = workflow.StageSet{}
	}
	return &p
}

func (r *progressRepo) Create(_ context.Context, p *workflow.Progress) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.progress[p.CaseID]; ok {
			return shared.NewDomainError("workflow", "Create", shared.ErrDuplicateRecord, "stage progress already exists")
		}
		s.progress[p.CaseID] = *copyProgress(*p)
		return nil
	})
}

func (r *progressRepo) Get(_ context.Context, caseID string) (*workflow.Progress, error) {
	var out *workflow.Progress
	err := r.a.read(func(s *state) error {
		p, ok := s.progress[caseID]
		if !ok {
			return shared.ErrProgressNotFound
		}
		out = copyProgress(p)
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: transactions are already serialized.
func (r *progressRepo) GetForUpdate(ctx context.Context, caseID string) (*workflow.Progress, error) {
	return r.Get(ctx, caseID)
}

func (r *progressRepo) Save(_ context.Context, p *workflow.Progress) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.progress[p.CaseID]; !ok {
			return shared.ErrProgressNotFound
		}
		s.progress[p.CaseID] = *copyProgress(*p)
		return nil
	})
}
