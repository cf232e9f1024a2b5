package activity

import "context"

// Repository persists assignments and their progress records.
type Repository interface {
	// CreateAssignments stores new assignments.
	CreateAssignments(ctx context.Context, as []*Assignment) error

	// GetAssignment returns an assignment. Returns ErrAssignmentNotFound when missing.
	GetAssignment(ctx context.Context, id string) (*Assignment, error)

	// SaveAssignment overwrites an assignment.
	SaveAssignment(ctx context.Context, a *Assignment) error

	// ListAssignments returns every assignment of the case, oldest first.
	ListAssignments(ctx context.Context, caseID string) ([]*Assignment, error)

	// CreateRecord stores a record. Returns ErrDuplicateSession when the
	// (assignment, date, performer) triple exists.
	CreateRecord(ctx context.Context, r *ProgressRecord) error

	// GetRecord returns a record. Returns ErrRecordNotFound when missing.
	GetRecord(ctx context.Context, id string) (*ProgressRecord, error)

	// SaveRecord overwrites a record. Returns ErrDuplicateSession on a key clash.
	SaveRecord(ctx context.Context, r *ProgressRecord) error

	// ListRecords returns every record of the case ordered by session date, then creation.
	ListRecords(ctx context.Context, caseID string) ([]*ProgressRecord, error)

	// DeleteByCase removes all assignments and records of the case.
	DeleteByCase(ctx context.Context, caseID string) error
}
