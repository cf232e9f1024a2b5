package memory

import (
	"context"
	"slices"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

type activityRepo struct{ a access }

func (r *activityRepo) CreateAssignments(_ context.Context, as []*activity.Assignment) error {
	return r.a.write(func(s *state) error {
		for _, a := range as {
			if _, ok := s.assignments[a.ID]; ok {
				return shared.NewDomainError("activity", "CreateAssignments", shared.ErrDuplicateRecord, "assignment already exists")
			}
		}
		for _, a := range as {
			s.assignments[a.ID] = *a
			s.insertOrder(a.ID)
		}
		return nil
	})
}

func (r *activityRepo) GetAssignment(_ context.Context, id string) (*activity.Assignment, error) {
	var out *activity.Assignment
	err := r.a.read(func(s *state) error {
		a, ok := s.assignments[id]
		if !ok {
			return shared.ErrAssignmentNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *activityRepo) SaveAssignment(_ context.Context, a *activity.Assignment) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.assignments[a.ID]; !ok {
			return shared.ErrAssignmentNotFound
		}
		s.assignments[a.ID] = *a
		return nil
	})
}

func (r *activityRepo) ListAssignments(_ context.Context, caseID string) ([]*activity.Assignment, error) {
	out := []*activity.Assignment{}
	err := r.a.read(func(s *state) error {
		for _, a := range s.assignments {
			if a.CaseID == caseID {
				out = append(out, &a)
			}
		}
		slices.SortFunc(out, func(x, y *activity.Assignment) int { return int(s.order[x.ID] - s.order[y.ID]) })
		return nil
	})
	return out, err
}

func sameSession(x, y activity.ProgressRecord) bool {
	return x.AssignmentID == y.AssignmentID && x.Performer == y.Performer && x.SessionDate.Equal(y.SessionDate)
}

func (r *activityRepo) CreateRecord(_ context.Context, rec *activity.ProgressRecord) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.assignments[rec.AssignmentID]; !ok {
			return shared.ErrAssignmentNotFound
		}
		for _, other := range s.records {
			if sameSession(other, *rec) {
				return shared.ErrDuplicateSession
			}
		}
		s.records[rec.ID] = *rec
		s.insertOrder(rec.ID)
		return nil
	})
}

func (r *activityRepo) GetRecord(_ context.Context, id string) (*activity.ProgressRecord, error) {
	var out *activity.ProgressRecord
	err := r.a.read(func(s *state) error {
		rec, ok := s.records[id]
		if !ok {
			return shared.ErrRecordNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r *activityRepo) SaveRecord(_ context.Context, rec *activity.ProgressRecord) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.records[rec.ID]; !ok {
			return shared.ErrRecordNotFound
		}
		for id, other := range s.records {
			if id != rec.ID && sameSession(other, *rec) {
				return shared.ErrDuplicateSession
			}
		}
		s.records[rec.ID] = *rec
		return nil
	})
}

func (r *activityRepo) ListRecords(_ context.Context, caseID string) ([]*activity.ProgressRecord, error) {
	out := []*activity.ProgressRecord{}
	err := r.a.read(func(s *state) error {
		for _, rec := range s.records {
			if rec.CaseID == caseID {
				out = append(out, &rec)
			}
		}
		slices.SortFunc(out, func(x, y *activity.ProgressRecord) int {
			if c := x.SessionDate.Compare(y.SessionDate); c != 0 {
				return c
			}
			return int(s.order[x.ID] - s.order[y.ID])
		})
		return nil
	})
	return out, err
}

func (r *activityRepo) DeleteByCase(_ context.Context, caseID string) error {
	return r.a.write(func(s *state) error {
		for id, rec := range s.records {
			if rec.CaseID == caseID {
				delete(s.records, id)
			}
		}
		for id, a := range s.assignments {
			if a.CaseID == caseID {
				delete(s.assignments, id)
			}
		}
		return nil
	})
}
