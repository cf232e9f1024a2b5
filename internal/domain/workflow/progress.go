package workflow

import (
	"context"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Progress is the stage state of a case.
//
// CompletedStages is always the prefix {1..CurrentStage-1}, plus stage 7 once
// the final stage itself has been completed.
type Progress struct {
	CaseID          string
	CurrentStage    Stage
	CompletedStages StageSet
	UpdatedAt       time.Time
}

// NewProgress creates the progress of a freshly opened case.
func NewProgress(caseID string, now time.Time) *Progress {
	return &Progress{
		CaseID:          caseID,
		CurrentStage:    FirstStage,
		CompletedStages: StageSet{},
		UpdatedAt:       now,
	}
}

// Complete marks the current stage complete and advances by one, except at the
// last stage. Nothing is mutated on error.
func (p *Progress) Complete(role shared.Role, table RoleTable, now time.Time) error {
	if !table.Permits(p.CurrentStage, role) {
		return shared.Errorf("workflow", "CompleteStage", shared.ErrRoleNotPermitted,
			"role %s cannot complete stage %d", role, int(p.CurrentStage))
	}
	if p.CompletedStages.Contains(p.CurrentStage) {
		return shared.ErrStageCompleted
	}
	completed := make(StageSet, len(p.CompletedStages), len(p.CompletedStages)+1)
	copy(completed, p.CompletedStages)
	p.CompletedStages = append(completed, p.CurrentStage)
	if p.CurrentStage < LastStage {
		p.CurrentStage++
	}
	p.UpdatedAt = now
	return nil
}

// ResetForNewSession moves the case back to current for a new therapy cycle,
// keeping only the preserved stages as completed. It is not a completion.
func (p *Progress) ResetForNewSession(current Stage, preserve StageSet, now time.Time) error {
	if !current.IsValid() {
		return shared.Errorf("workflow", "ResetForNewSession", shared.ErrOutOfRange, "invalid stage %d", int(current))
	}
	for i, s := range preserve {
		if s != Stage(i+1) || s >= current {
			return shared.NewDomainError("workflow", "ResetForNewSession", shared.ErrInvalidInput,
				"preserved stages must be the prefix before the new current stage")
		}
	}
	p.CurrentStage = current
	p.CompletedStages = append(StageSet(nil), preserve...)
	p.UpdatedAt = now
	return nil
}

// RequireStage gates an operation to the listed stages.
func (p *Progress) RequireStage(op string, allowed ...Stage) error {
	for _, s := range allowed {
		if p.CurrentStage == s {
			return nil
		}
	}
	return shared.Errorf("workflow", op, shared.ErrPreconditionNotMet,
		"operation requires stage %v, case is at stage %d", StageSet(allowed).Ints(), int(p.CurrentStage))
}

// Restart values used by the session archiver.
var (
	RestartStage        = StageActivityAssignment
	RestartPreservedSet = StageSet{StageHandwriting, StageTaskDefinition, StageTaskScoring, StageAssessment}
)

// Repository persists stage progress.
type Repository interface {
	// Create stores the initial progress of a case.
	Create(ctx context.Context, p *Progress) error

	// Get returns the progress. Returns ErrProgressNotFound when missing.
	Get(ctx context.Context, caseID string) (*Progress, error)

	// GetForUpdate returns the progress and locks it until the surrounding
	// transaction ends. Used to serialize session transitions.
	GetForUpdate(ctx context.Context, caseID string) (*Progress, error)

	// Save overwrites the progress.
	Save(ctx context.Context, p *Progress) error
}
