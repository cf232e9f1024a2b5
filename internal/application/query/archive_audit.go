package query

import (
	"context"
	"errors"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

const defaultAuditBatch = 200

// AuditResult summarizes one integrity sweep over the archive.
type AuditResult struct {
	Checked  int
	Failed   []archive.Cursor
	Duration time.Duration
}

// ErrArchiveTampered is returned by Audit when at least one report fails its
// checksum.
var ErrArchiveTampered = errors.New("archived reports failed integrity check")

// ArchiveAuditor re-verifies the checksum of every archived report.
type ArchiveAuditor struct {
	uow   port.UnitOfWork
	cache ReportCache
	batch int
	log   *logger.Logger
}

// NewArchiveAuditor creates an auditor. cache may be nil; when set, cached
// lists of cases with a failing report are dropped.
func NewArchiveAuditor(uow port.UnitOfWork, cache ReportCache, batch int, log *logger.Logger) *ArchiveAuditor {
	if batch <= 0 {
		batch = defaultAuditBatch
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ArchiveAuditor{uow: uow, cache: cache, batch: batch, log: log}
}

// Audit walks the archive in batches. It returns ErrArchiveTampered together
// with the result when any report fails.
func (a *ArchiveAuditor) Audit(ctx context.Context) (AuditResult, error) {
	start := time.Now()
	repo := a.uow.Repositories().Reports

	var res AuditResult
	var cursor archive.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := repo.ListAll(ctx, cursor, a.batch)
		if err != nil {
			return res, err
		}
		for _, r := range page {
			res.Checked++
			if err := r.Verify(); err != nil {
				res.Failed = append(res.Failed, r.Cursor())
				a.log.Error("archived report failed integrity check",
					logger.CaseID(r.CaseID), logger.SessionNumber(r.SessionNumber))
				a.dropCached(ctx, r.CaseID)
			}
		}
		if len(page) < a.batch {
			break
		}
		cursor = page[len(page)-1].Cursor()
	}

	res.Duration = time.Since(start)
	if len(res.Failed) > 0 {
		return res, ErrArchiveTampered
	}
	return res, nil
}

func (a *ArchiveAuditor) dropCached(ctx context.Context, caseID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx, caseID); err != nil {
		a.log.Warn("report cache invalidation failed", logger.CaseID(caseID), logger.Err(err))
	}
}
