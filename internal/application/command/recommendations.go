package command

import (
	"context"
	"errors"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// RecommendationStore handles per-session teacher and parent recommendations.
type RecommendationStore struct {
	deps Deps
}

func NewRecommendationStore(deps Deps) *RecommendationStore {
	return &RecommendationStore{deps: deps.withDefaults()}
}

// currentSession returns the session number of the live evaluation, or 1.
func currentSession(ctx context.Context, repos port.Repositories, caseID string) (int, error) {
	e, err := repos.Evaluations.Get(ctx, caseID)
	if errors.Is(err, shared.ErrNotFound) {
		return evaluation.CurrentSession(nil), nil
	}
	if err != nil {
		return 0, err
	}
	return evaluation.CurrentSession(e), nil
}

// Get returns a stakeholder's recommendation for a session. A session below 1
// means the live one.
func (r *RecommendationStore) Get(ctx context.Context, caseID, stakeholderID string, session int, actor shared.Actor) (*evaluation.Recommendation, error) {
	repos := r.deps.UoW.Repositories()
	s, err := loadScope(ctx, repos, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize("GetRecommendation", actor, nil); err != nil {
		return nil, err
	}
	if actor.Role != shared.RoleDoctor && actor.UserID != stakeholderID {
		return nil, shared.NewDomainError("recommendation", "Get", shared.ErrRoleNotPermitted, "caregivers can only read their own recommendation")
	}
	if session < 1 {
		if session, err = currentSession(ctx, repos, caseID); err != nil {
			return nil, err
		}
	}
	return repos.Recommendations.Get(ctx, caseID, stakeholderID, session)
}

// Upsert stores the actor's recommendation for the current session.
func (r *RecommendationStore) Upsert(ctx context.Context, caseID string, actor shared.Actor, fields evaluation.RecommendationFields) (rec *evaluation.Recommendation, err error) {
	const op = "UpsertRecommendation"
	started := r.deps.now()
	ctx, span := r.deps.span(ctx, op, caseID, actor)
	defer func() { r.deps.end(span, op, caseID, actor, started, err) }()

	err = r.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleTeacher, shared.RoleParent)); err != nil {
			return err
		}
		session, err := currentSession(ctx, repos, caseID)
		if err != nil {
			return err
		}

		now := r.deps.now()
		existing, err := repos.Recommendations.Get(ctx, caseID, actor.UserID, session)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			rec, err = evaluation.NewRecommendation(r.deps.NewID(), caseID, actor, session, fields, now)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			existing.Update(fields, now)
			rec = existing
		}
		return repos.Recommendations.Upsert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListForSession returns all recommendations of a session to a linked doctor.
// A session below 1 means the live one.
func (r *RecommendationStore) ListForSession(ctx context.Context, caseID string, session int, actor shared.Actor) ([]*evaluation.Recommendation, error) {
	repos := r.deps.UoW.Repositories()
	s, err := loadScope(ctx, repos, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize("ListRecommendations", actor, roles(shared.RoleDoctor)); err != nil {
		return nil, err
	}
	if session < 1 {
		if session, err = currentSession(ctx, repos, caseID); err != nil {
			return nil, err
		}
	}
	return repos.Recommendations.ListForSession(ctx, caseID, session)
}
