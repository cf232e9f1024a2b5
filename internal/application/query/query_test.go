package query

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/memory"
)

var (
	now     = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	teacher = shared.Actor{UserID: "teacher-1", Role: shared.RoleTeacher}
	doctor  = shared.Actor{UserID: "doctor-1", Role: shared.RoleDoctor}
	parent  = shared.Actor{UserID: "parent-1", Role: shared.RoleParent}
)

func caseID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// seedCase stores a case owned by teacher with doctor and parent linked.
func seedCase(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repositories()

	c, err := caseload.NewCase(caseload.NewCaseParams{ID: id, Name: "Dana", Gender: caseload.GenderFemale, TeacherID: teacher.UserID, Now: now})
	require.NoError(t, err)
	require.NoError(t, repos.Cases.Create(ctx, c))
	for _, a := range []shared.Actor{doctor, parent} {
		l, err := caseload.NewLink(id, a.UserID, a.Role, now)
		require.NoError(t, err)
		require.NoError(t, repos.Cases.AddLink(ctx, l))
	}
	require.NoError(t, repos.Progress.Create(ctx, workflow.NewProgress(id, now)))
}

// seedReport archives session number n of the case. A tampered report has its
// payload changed after sealing.
func seedReport(t *testing.T, store *memory.Store, id string, n int, tampered bool) {
	t.Helper()
	r := archive.SnapshotFromCurrentData(archive.SnapshotInput{
		ReportID:      fmt.Sprintf("rep-%s-%d", id, n),
		CaseID:        id,
		LatestSession: n - 1,
		ArchivedBy:    doctor.UserID,
		Now:           now,
	})
	require.NoError(t, r.Seal(archive.OutcomeContinued))
	if tampered {
		r.SessionEndDate = r.SessionEndDate.Add(time.Hour)
	}
	require.NoError(t, store.Repositories().Reports.Create(context.Background(), r))
}

type mapCache struct {
	mu          sync.Mutex
	lists       map[string][]ReportDTO
	hits        int
	invalidated []string
}

func newMapCache() *mapCache { return &mapCache{lists: map[string][]ReportDTO{}} }

func (c *mapCache) GetReports(_ context.Context, caseID string) ([]ReportDTO, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[caseID]
	if ok {
		c.hits++
	}
	return l, ok, nil
}

func (c *mapCache) SetReports(_ context.Context, caseID string, reports []ReportDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[caseID] = reports
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, caseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, caseID)
	c.invalidated = append(c.invalidated, caseID)
	return nil
}

func TestListReports_VerifiesAndCaches(t *testing.T) {
	store := memory.New()
	cache := newMapCache()
	id := caseID(1)
	seedCase(t, store, id)
	seedReport(t, store, id, 1, false)
	seedReport(t, store, id, 2, false)
	h := NewTherapyReportsHandler(store, cache, nil)
	ctx := context.Background()

	list, err := h.ListReports(ctx, id, parent)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].SessionNumber)
	assert.Equal(t, "continued", list[1].Outcome)
	assert.Zero(t, cache.hits)

	again, err := h.ListReports(ctx, id, teacher)
	require.NoError(t, err)
	assert.Equal(t, list, again)
	assert.Equal(t, 1, cache.hits)

	_, err = h.ListReports(ctx, id, shared.Actor{UserID: "doctor-9", Role: shared.RoleDoctor})
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted, "cache hits still require membership")

	one, err := h.GetReport(ctx, id, 2, doctor)
	require.NoError(t, err)
	assert.Equal(t, 2, one.SessionNumber)

	_, err = h.GetReport(ctx, id, 3, doctor)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListReports_TamperedReportIsInternalError(t *testing.T) {
	store := memory.New()
	cache := newMapCache()
	id := caseID(1)
	seedCase(t, store, id)
	seedReport(t, store, id, 1, true)
	h := NewTherapyReportsHandler(store, cache, nil)

	_, err := h.ListReports(context.Background(), id, doctor)
	require.ErrorIs(t, err, shared.ErrChecksumMismatch)
	assert.ErrorIs(t, err, shared.ErrInternal)
	assert.Empty(t, cache.lists, "a failing list is never cached")

	_, err = h.GetReport(context.Background(), id, 1, doctor)
	assert.ErrorIs(t, err, shared.ErrChecksumMismatch)
}

func TestArchiveAuditor(t *testing.T) {
	store := memory.New()
	cache := newMapCache()
	for i := 1; i <= 3; i++ {
		seedCase(t, store, caseID(i))
	}
	seedReport(t, store, caseID(1), 1, false)
	seedReport(t, store, caseID(1), 2, false)
	seedReport(t, store, caseID(2), 1, false)
	seedReport(t, store, caseID(3), 1, true)
	seedReport(t, store, caseID(3), 2, false)

	auditor := NewArchiveAuditor(store, cache, 2, nil)
	res, err := auditor.Audit(context.Background())
	require.ErrorIs(t, err, ErrArchiveTampered)
	assert.Equal(t, 5, res.Checked)
	assert.Equal(t, []archive.Cursor{{CaseID: caseID(3), SessionNumber: 1}}, res.Failed)
	assert.Equal(t, []string{caseID(3)}, cache.invalidated)
}

func TestArchiveAuditor_CleanArchive(t *testing.T) {
	store := memory.New()
	seedCase(t, store, caseID(1))
	seedReport(t, store, caseID(1), 1, false)

	res, err := NewArchiveAuditor(store, nil, 0, nil).Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Empty(t, res.Failed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewArchiveAuditor(store, nil, 0, nil).Audit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVisibleAssignments(t *testing.T) {
	own := &activity.Assignment{ID: "a1", DoctorID: doctor.UserID, IsActive: true}
	ownInactive := &activity.Assignment{ID: "a2", DoctorID: doctor.UserID, IsActive: false}
	other := &activity.Assignment{ID: "a3", DoctorID: "doctor-2", IsActive: true}
	all := []*activity.Assignment{own, ownInactive, other}

	ids := func(as []*activity.Assignment) []string {
		out := []string{}
		for _, a := range as {
			out = append(out, a.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a1", "a2"}, ids(VisibleAssignments(all, doctor)))
	assert.Equal(t, []string{"a1", "a3"}, ids(VisibleAssignments(all, teacher)))
	assert.Equal(t, []string{"a1", "a3"}, ids(VisibleAssignments(all, parent)))
}

func TestEvaluationSummary_ByRole(t *testing.T) {
	store := memory.New()
	id := caseID(1)
	seedCase(t, store, id)
	h := NewEvaluationSummaryHandler(store)
	ctx := context.Background()

	empty, err := h.Summary(ctx, id, teacher)
	require.NoError(t, err)
	assert.False(t, empty.Exists)
	assert.Nil(t, empty.Reduced)

	e, err := evaluation.New("eval-1", id, doctor.UserID, evaluation.Fields{}, now)
	require.NoError(t, err)
	require.NoError(t, store.Repositories().Evaluations.Create(ctx, e))
	rec, err := evaluation.NewRecommendation("rec-1", id, parent, 1, evaluation.RecommendationFields{Observations: "reads aloud at home"}, now)
	require.NoError(t, err)
	require.NoError(t, store.Repositories().Recommendations.Upsert(ctx, rec))

	full, err := h.Summary(ctx, id, doctor)
	require.NoError(t, err)
	assert.True(t, full.Exists)
	require.NotNil(t, full.Full)
	assert.Nil(t, full.Reduced)

	reduced, err := h.Summary(ctx, id, parent)
	require.NoError(t, err)
	assert.Nil(t, reduced.Full)
	require.NotNil(t, reduced.Reduced)
	require.NotNil(t, reduced.MyRecommendation)
	assert.Equal(t, "reads aloud at home", reduced.MyRecommendation.Observations)

	mine, err := h.Summary(ctx, id, teacher)
	require.NoError(t, err)
	assert.Nil(t, mine.MyRecommendation)
}

func TestComprehensiveData_DoctorOnly(t *testing.T) {
	store := memory.New()
	id := caseID(1)
	seedCase(t, store, id)
	h := NewComprehensiveHandler(store)

	_, err := h.ComprehensiveData(context.Background(), id, teacher)
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)

	out, err := h.ComprehensiveData(context.Background(), id, doctor)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Stage.CurrentStage)
	assert.Nil(t, out.Summary)
	assert.Nil(t, out.Evaluation)
	assert.Empty(t, out.Tasks)
}
