// Package port declares what the application layer needs from the outside:
// transactional storage and the external handwriting and file services.
package port

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// Repositories groups every repository of the domain. Values handed out by a
// UnitOfWork are bound to one transaction or to autocommit.
type Repositories struct {
	Cases           caseload.Repository
	Progress        workflow.Repository
	Tasks           assessment.TaskRepository
	Summaries       assessment.SummaryRepository
	Handwriting     assessment.HandwritingRepository
	Activities      activity.Repository
	Evaluations     evaluation.Repository
	Recommendations evaluation.RecommendationRepository
	Reports         archive.Repository
}

// UnitOfWork manages transactional boundaries.
type UnitOfWork interface {
	// Repositories returns repositories that run outside any transaction.
	Repositories() Repositories

	// WithinTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
