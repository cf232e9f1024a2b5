package memory

import (
	"context"
	"slices"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

type caseRepo struct{ a access }

func (r *caseRepo) Create(_ context.Context, c *caseload.Case) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.cases[c.ID]; ok {
			return shared.NewDomainError("caseload", "Create", shared.ErrDuplicateRecord, "case already exists")
		}
		s.cases[c.ID] = *c
		s.insertOrder(c.ID)
		return nil
	})
}

func (r *caseRepo) Get(_ context.Context, id string) (*caseload.Case, error) {
	var out *caseload.Case
	err := r.a.read(func(s *state) error {
		c, ok := s.cases[id]
		if !ok {
			return shared.ErrCaseNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *caseRepo) ListForMember(_ context.Context, actor shared.Actor) ([]*caseload.Case, error) {
	var out []*caseload.Case
	err := r.a.read(func(s *state) error {
		for id, c := range s.cases {
			roster := caseload.Roster{Case: &c, Links: s.links[id]}
			if roster.IsAttached(actor) {
				out = append(out, &c)
			}
		}
		slices.SortFunc(out, func(x, y *caseload.Case) int { return int(s.order[x.ID] - s.order[y.ID]) })
		return nil
	})
	return out, err
}

func (r *caseRepo) Links(_ context.Context, caseID string) ([]caseload.Link, error) {
	var out []caseload.Link
	err := r.a.read(func(s *state) error {
		out = slices.Clone(s.links[caseID])
		return nil
	})
	return out, err
}

func (r *caseRepo) AddLink(_ context.Context, l caseload.Link) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.cases[l.CaseID]; !ok {
			return shared.ErrCaseNotFound
		}
		for _, existing := range s.links[l.CaseID] {
			if existing.UserID == l.UserID {
				return shared.ErrLinkExists
			}
		}
		s.links[l.CaseID] = append(slices.Clone(s.links[l.CaseID]), l)
		return nil
	})
}

func (r *caseRepo) RemoveLink(_ context.Context, caseID, userID string) error {
	return r.a.write(func(s *state) error {
		links := s.links[caseID]
		i := slices.IndexFunc(links, func(l caseload.Link) bool { return l.UserID == userID })
		if i < 0 {
			return shared.ErrLinkNotFound
		}
		s.links[caseID] = slices.Delete(slices.Clone(links), i, i+1)
		return nil
	})
}
