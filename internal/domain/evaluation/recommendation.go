package evaluation

import (
	"context"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Recommendation is a teacher's or parent's input for one therapy session.
// Unique per (case, stakeholder, session).
type Recommendation struct {
	ID                   string
	CaseID               string
	StakeholderID        string
	StakeholderType      shared.Role
	TherapySessionNumber int
	Observations         string
	Recommendations      string
	Concerns             string
	PositiveChanges      string
	SupportNeeded        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RecommendationFields are the free-text sections of a recommendation.
type RecommendationFields struct {
	Observations    string
	Recommendations string
	Concerns        string
	PositiveChanges string
	SupportNeeded   string
}

// NewRecommendation creates a recommendation for the stakeholder.
func NewRecommendation(id, caseID string, actor shared.Actor, session int, f RecommendationFields, now time.Time) (*Recommendation, error) {
	if actor.Role != shared.RoleTeacher && actor.Role != shared.RoleParent {
		return nil, shared.Errorf("recommendation", "Upsert", shared.ErrRoleNotPermitted,
			"role %s cannot submit recommendations", actor.Role)
	}
	if session < 1 {
		return nil, shared.NewDomainError("recommendation", "Upsert", shared.ErrOutOfRange, "session number must be positive")
	}
	r := &Recommendation{
		ID:                   id,
		CaseID:               caseID,
		StakeholderID:        actor.UserID,
		StakeholderType:      actor.Role,
		TherapySessionNumber: session,
		CreatedAt:            now,
	}
	r.Update(f, now)
	return r, nil
}

// Update replaces the free-text sections.
func (r *Recommendation) Update(f RecommendationFields, now time.Time) {
	r.Observations = f.Observations
	r.Recommendations = f.Recommendations
	r.Concerns = f.Concerns
	r.PositiveChanges = f.PositiveChanges
	r.SupportNeeded = f.SupportNeeded
	r.UpdatedAt = now
}

// RecommendationRepository persists stakeholder recommendations.
type RecommendationRepository interface {
	// Get returns one recommendation. Returns ErrRecommendationNotFound when missing.
	Get(ctx context.Context, caseID, stakeholderID string, session int) (*Recommendation, error)

	// Upsert inserts or replaces by (case, stakeholder, session).
	Upsert(ctx context.Context, r *Recommendation) error

	// ListForSession returns the session's recommendations ordered by stakeholder type.
	ListForSession(ctx context.Context, caseID string, session int) ([]*Recommendation, error)
}
