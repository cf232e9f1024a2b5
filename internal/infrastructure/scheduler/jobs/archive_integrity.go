// Package jobs contains the scheduled maintenance jobs of the therapy workflow
// service.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARCHIVE INTEGRITY JOB
// ══════════════════════════════════════════════════════════════════════════════

// Auditor re-verifies archived reports.
type Auditor interface {
	Audit(ctx context.Context) (query.AuditResult, error)
}

// ArchiveIntegrityJob sweeps the session archive and reports any report whose
// stored checksum no longer matches its snapshot.
type ArchiveIntegrityJob struct {
	auditor Auditor
	timeout time.Duration
	logger  *logger.Logger

	lastRunStats atomic.Pointer[query.AuditResult]
}

// NewArchiveIntegrityJob creates the job. A zero timeout means no limit.
func NewArchiveIntegrityJob(auditor Auditor, timeout time.Duration, log *logger.Logger) *ArchiveIntegrityJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ArchiveIntegrityJob{auditor: auditor, timeout: timeout, logger: log}
}

// Name returns the job name.
func (j *ArchiveIntegrityJob) Name() string { return "archive_integrity" }

// Description returns a human-readable description.
func (j *ArchiveIntegrityJob) Description() string {
	return "Re-verifies the checksum of every archived therapy session report"
}

// Run executes one sweep.
func (j *ArchiveIntegrityJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	res, err := j.auditor.Audit(ctx)
	j.lastRunStats.Store(&res)

	j.logger.Info("archive integrity sweep finished",
		logger.Int("checked", res.Checked),
		logger.Int("failed", len(res.Failed)),
		logger.Duration("duration", res.Duration),
	)
	return err
}

// LastRunStats returns the result of the previous run, or nil.
func (j *ArchiveIntegrityJob) LastRunStats() *query.AuditResult {
	return j.lastRunStats.Load()
}
