package query

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY TRACKING
// Teachers and parents see every active assignment of the case. Doctors see
// only the assignments they created, active or not.
// ══════════════════════════════════════════════════════════════════════════════

// TrackingHandler serves the activity tracking view.
type TrackingHandler struct {
	uow port.UnitOfWork
}

func NewTrackingHandler(uow port.UnitOfWork) *TrackingHandler {
	return &TrackingHandler{uow: uow}
}

// ListForTracking returns the assignments visible to the actor with their history.
func (h *TrackingHandler) ListForTracking(ctx context.Context, caseID string, actor shared.Actor) ([]TrackedAssignmentDTO, error) {
	repos := h.uow.Repositories()
	if _, err := authorize(ctx, repos, caseID, actor); err != nil {
		return nil, err
	}
	tracked, err := loadTracked(ctx, repos, caseID, actor)
	if err != nil {
		return nil, err
	}
	return NewTrackedDTOs(tracked), nil
}

func loadTracked(ctx context.Context, repos port.Repositories, caseID string, actor shared.Actor) ([]activity.Tracked, error) {
	assignments, err := repos.Activities.ListAssignments(ctx, caseID)
	if err != nil {
		return nil, err
	}
	records, err := repos.Activities.ListRecords(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return activity.Track(VisibleAssignments(assignments, actor), records), nil
}

// VisibleAssignments filters assignments by what the actor may track.
func VisibleAssignments(all []*activity.Assignment, actor shared.Actor) []*activity.Assignment {
	out := make([]*activity.Assignment, 0, len(all))
	for _, a := range all {
		switch actor.Role {
		case shared.RoleDoctor:
			if a.DoctorID == actor.UserID {
				out = append(out, a)
			}
		default:
			if a.IsActive {
				out = append(out, a)
			}
		}
	}
	return out
}
