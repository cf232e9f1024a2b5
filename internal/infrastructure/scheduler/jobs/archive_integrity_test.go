package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/scheduler"
)

type stubAuditor struct {
	res         query.AuditResult
	err         error
	hadDeadline bool
}

func (a *stubAuditor) Audit(ctx context.Context) (query.AuditResult, error) {
	_, a.hadDeadline = ctx.Deadline()
	return a.res, a.err
}

func TestArchiveIntegrityJob_StoresLastRun(t *testing.T) {
	auditor := &stubAuditor{res: query.AuditResult{Checked: 12}}
	job := NewArchiveIntegrityJob(auditor, time.Minute, nil)
	assert.Nil(t, job.LastRunStats())

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, auditor.hadDeadline)
	require.NotNil(t, job.LastRunStats())
	assert.Equal(t, 12, job.LastRunStats().Checked)
}

func TestArchiveIntegrityJob_ReportsTampering(t *testing.T) {
	auditor := &stubAuditor{
		res: query.AuditResult{Checked: 3, Failed: []archive.Cursor{{CaseID: "case-1", SessionNumber: 2}}},
		err: query.ErrArchiveTampered,
	}
	job := NewArchiveIntegrityJob(auditor, 0, nil)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, query.ErrArchiveTampered)
	assert.False(t, auditor.hadDeadline)
	assert.Len(t, job.LastRunStats().Failed, 1)
}

func TestArchiveIntegrityJob_RunsUnderScheduler(t *testing.T) {
	job := NewArchiveIntegrityJob(&stubAuditor{err: query.ErrArchiveTampered}, 0, nil)
	s := scheduler.New(scheduler.DefaultConfig())
	sched, err := scheduler.ParseSchedule("0 3 * * *")
	require.NoError(t, err)
	require.NoError(t, s.Register(job, sched))

	res, err := s.RunNow(context.Background(), job.Name())
	require.ErrorIs(t, err, query.ErrArchiveTampered)
	assert.False(t, res.Success)
	assert.Equal(t, "archive_integrity", res.JobName)
}
