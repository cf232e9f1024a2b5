package caseload

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Repository persists cases and their caregiver links.
type Repository interface {
	// Create stores a new case.
	Create(ctx context.Context, c *Case) error

	// Get returns the case. Returns ErrCaseNotFound when missing.
	Get(ctx context.Context, id string) (*Case, error)

	// ListForMember returns the cases an actor owns or is linked to.
	ListForMember(ctx context.Context, actor shared.Actor) ([]*Case, error)

	// Links returns every link of the case, oldest first.
	Links(ctx context.Context, caseID string) ([]Link, error)

	// AddLink stores a link. Returns ErrLinkExists for a duplicate user.
	AddLink(ctx context.Context, l Link) error

	// RemoveLink deletes a link. Returns ErrLinkNotFound when missing.
	RemoveLink(ctx context.Context, caseID, userID string) error
}

// LoadRoster reads a case together with its links.
func LoadRoster(ctx context.Context, repo Repository, caseID string) (Roster, error) {
	c, err := repo.Get(ctx, caseID)
	if err != nil {
		return Roster{}, err
	}
	links, err := repo.Links(ctx, caseID)
	if err != nil {
		return Roster{}, err
	}
	return Roster{Case: c, Links: links}, nil
}
