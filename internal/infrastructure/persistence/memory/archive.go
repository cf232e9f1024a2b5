package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

type reportRepo struct{ a access }

func (r *reportRepo) Create(_ context.Context, rep *archive.Report) error {
	return r.a.write(func(s *state) error {
		existing := s.reports[rep.CaseID]
		for _, e := range existing {
			if e.SessionNumber == rep.SessionNumber {
				return shared.ErrReportExists
			}
		}
		next := append(slices.Clone(existing), *rep)
		slices.SortFunc(next, func(x, y archive.Report) int { return x.SessionNumber - y.SessionNumber })
		s.reports[rep.CaseID] = next
		return nil
	})
}

func (r *reportRepo) LatestSessionNumber(_ context.Context, caseID string) (int, error) {
	var latest int
	err := r.a.read(func(s *state) error {
		for _, e := range s.reports[caseID] {
			latest = max(latest, e.SessionNumber)
		}
		return nil
	})
	return latest, err
}

func (r *reportRepo) List(_ context.Context, caseID string) ([]*archive.Report, error) {
	out := []*archive.Report{}
	err := r.a.read(func(s *state) error {
		for _, e := range s.reports[caseID] {
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func (r *reportRepo) Get(_ context.Context, caseID string, session int) (*archive.Report, error) {
	var out *archive.Report
	err := r.a.read(func(s *state) error {
		for _, e := range s.reports[caseID] {
			if e.SessionNumber == session {
				out = &e
				return nil
			}
		}
		return shared.ErrReportNotFound
	})
	return out, err
}

func (r *reportRepo) ListAll(_ context.Context, after archive.Cursor, limit int) ([]*archive.Report, error) {
	out := []*archive.Report{}
	err := r.a.read(func(s *state) error {
		for _, list := range s.reports {
			for _, e := range list {
				if cmp.Or(cmp.Compare(e.CaseID, after.CaseID), cmp.Compare(e.SessionNumber, after.SessionNumber)) > 0 {
					out = append(out, &e)
				}
			}
		}
		return nil
	})
	slices.SortFunc(out, func(x, y *archive.Report) int {
		return cmp.Or(cmp.Compare(x.CaseID, y.CaseID), cmp.Compare(x.SessionNumber, y.SessionNumber))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
