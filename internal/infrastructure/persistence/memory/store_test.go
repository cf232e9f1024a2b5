package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

var now = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		require.NoError(t, repos.Progress.Create(ctx, workflow.NewProgress("case-1", now)))
		_, err := repos.Progress.Get(ctx, "case-1")
		require.NoError(t, err, "writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Repositories().Progress.Get(ctx, "case-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestWithinTx_CommitIsInvisibleUntilDone(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := repos.Progress.Create(ctx, workflow.NewProgress("case-1", now)); err != nil {
			return err
		}
		_, err := s.Repositories().Progress.Get(ctx, "case-1")
		assert.ErrorIs(t, err, shared.ErrNotFound, "autocommit readers see committed state only")
		return nil
	})
	require.NoError(t, err)

	p, err := s.Repositories().Progress.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.FirstStage, p.CurrentStage)
}

func TestWithinTx_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(context.Context, port.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, shared.ErrInternal)
	assert.False(t, called)
}

func TestProgress_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	repos := s.Repositories()
	require.NoError(t, repos.Progress.Create(ctx, workflow.NewProgress("case-1", now)))

	p, err := repos.Progress.Get(ctx, "case-1")
	require.NoError(t, err)
	p.CompletedStages = append(p.CompletedStages, workflow.StageHandwriting)
	p.CurrentStage = workflow.StageTaskDefinition

	again, err := repos.Progress.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.FirstStage, again.CurrentStage)
	assert.Empty(t, again.CompletedStages)
}

func sealedReport(t *testing.T, caseID string, session int) *archive.Report {
	t.Helper()
	r := archive.SnapshotFromCurrentData(archive.SnapshotInput{
		ReportID:      fmt.Sprintf("%s/%d", caseID, session),
		CaseID:        caseID,
		LatestSession: session - 1,
		Now:           now,
	})
	require.NoError(t, r.Seal(archive.OutcomeContinued))
	return r
}

func TestReports_CreateRejectsDuplicateSession(t *testing.T) {
	repo := New().Repositories().Reports
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sealedReport(t, "case-1", 1)))
	assert.ErrorIs(t, repo.Create(ctx, sealedReport(t, "case-1", 1)), shared.ErrDuplicateRecord)

	require.NoError(t, repo.Create(ctx, sealedReport(t, "case-1", 2)))
	latest, err := repo.LatestSessionNumber(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	latest, err = repo.LatestSessionNumber(ctx, "case-2")
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestReports_ListAllPages(t *testing.T) {
	repo := New().Repositories().Reports
	ctx := context.Background()
	for _, c := range []string{"case-b", "case-a"} {
		for n := 1; n <= 3; n++ {
			require.NoError(t, repo.Create(ctx, sealedReport(t, c, n)))
		}
	}

	var seen []archive.Cursor
	var cursor archive.Cursor
	for {
		page, err := repo.ListAll(ctx, cursor, 4)
		require.NoError(t, err)
		for _, r := range page {
			seen = append(seen, r.Cursor())
		}
		if len(page) < 4 {
			break
		}
		cursor = page[len(page)-1].Cursor()
	}

	assert.Equal(t, []archive.Cursor{
		{CaseID: "case-a", SessionNumber: 1},
		{CaseID: "case-a", SessionNumber: 2},
		{CaseID: "case-a", SessionNumber: 3},
		{CaseID: "case-b", SessionNumber: 1},
		{CaseID: "case-b", SessionNumber: 2},
		{CaseID: "case-b", SessionNumber: 3},
	}, seen)
}
