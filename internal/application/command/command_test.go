package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/memory"
)

var (
	teacher = shared.Actor{UserID: "teacher-1", Role: shared.RoleTeacher}
	doctor  = shared.Actor{UserID: "doctor-1", Role: shared.RoleDoctor}
	parent  = shared.Actor{UserID: "parent-1", Role: shared.RoleParent}

	stageActor = map[workflow.Stage]shared.Actor{
		workflow.StageHandwriting:        teacher,
		workflow.StageTaskDefinition:     doctor,
		workflow.StageTaskScoring:        teacher,
		workflow.StageAssessment:         doctor,
		workflow.StageActivityAssignment: doctor,
		workflow.StageActivityTracking:   parent,
		workflow.StageFinalEvaluation:    doctor,
	}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	onPub  func(shared.Event)
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		if p.onPub != nil {
			p.onPub(e)
		}
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// failingCommit runs the transaction body, then aborts it as if COMMIT failed.
type failingCommit struct {
	*memory.Store
	fail atomic.Bool
}

var errCommit = errors.New("commit failed")

func (u *failingCommit) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return u.Store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		if u.fail.Load() {
			return shared.WrapError("memory", "Commit", shared.ErrInternal, "commit", errCommit)
		}
		return nil
	})
}

type harness struct {
	store *memory.Store
	uow   *failingCommit
	pub   *recordingPublisher
	clock *testClock
	deps  Deps

	cases      *CaseRegistry
	stages     *StageTracker
	tasks      *TaskScoringEngine
	assess     *AssessmentEngine
	activities *ActivityLifecycleManager
	evals      *FinalEvaluationController
	archiver   *SessionArchiver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	h := &harness{
		store: store,
		uow:   &failingCommit{Store: store},
		pub:   &recordingPublisher{},
		clock: &testClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
	}
	var seq atomic.Int64
	deps := Deps{
		UoW:       h.uow,
		Publisher: h.pub,
		Clock:     h.clock.Now,
		NewID:     func() string { return fmt.Sprintf("00000000-0000-4000-8000-%012d", seq.Add(1)) },
	}
	h.deps = deps
	h.cases = NewCaseRegistry(deps)
	h.stages = NewStageTracker(deps)
	h.tasks = NewTaskScoringEngine(deps)
	h.assess = NewAssessmentEngine(deps)
	h.activities = NewActivityLifecycleManager(deps)
	h.evals = NewFinalEvaluationController(deps)
	h.archiver = NewSessionArchiver(deps)
	return h
}

func (h *harness) openCase(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	c, err := h.cases.OpenCase(ctx, teacher, OpenCaseCommand{Name: "Dana", School: "No. 12", Grade: "2", Gender: caseload.GenderFemale})
	require.NoError(t, err)
	_, err = h.cases.LinkCaregiver(ctx, c.ID, teacher, doctor.UserID, shared.RoleDoctor)
	require.NoError(t, err)
	_, err = h.cases.LinkCaregiver(ctx, c.ID, teacher, parent.UserID, shared.RoleParent)
	require.NoError(t, err)
	return c.ID
}

// completeThrough completes every stage up to and including last.
func (h *harness) completeThrough(t *testing.T, caseID string, last workflow.Stage) StageResult {
	t.Helper()
	var res StageResult
	for {
		cur, err := h.stages.Get(context.Background(), caseID, teacher)
		require.NoError(t, err)
		stage := workflow.Stage(cur.CurrentStage)
		if stage > last || slices.Contains(cur.CompletedStages, stage.Int()) {
			return cur
		}
		res, err = h.stages.CompleteStage(context.Background(), caseID, stageActor[stage])
		require.NoError(t, err, "stage %d", stage)
		if stage == last {
			return res
		}
	}
}

// runToEvaluation drives a case through stages 1 to 6 with real data and
// writes a live evaluation at stage 7.
func (h *harness) runToEvaluation(t *testing.T, caseID string) *activity.Assignment {
	t.Helper()
	ctx := context.Background()

	h.completeThrough(t, caseID, workflow.StageHandwriting)
	tasks, err := h.tasks.DefineTasks(ctx, caseID, doctor, []assessment.TaskInput{
		{Name: "Reading", MaxScore: 10},
		{Name: "Spelling", MaxScore: 10},
	})
	require.NoError(t, err)

	h.completeThrough(t, caseID, workflow.StageTaskDefinition)
	_, err = h.tasks.ScoreTasks(ctx, caseID, teacher, []assessment.ScoreEntry{
		{TaskID: tasks[0].ID, Score: 8},
		{TaskID: tasks[1].ID, Score: 6},
	})
	require.NoError(t, err)

	h.completeThrough(t, caseID, workflow.StageTaskScoring)
	_, err = h.assess.CreateOrUpdateSummary(ctx, caseID, doctor, assessment.SummaryInput{Cutoff: "70"})
	require.NoError(t, err)

	h.completeThrough(t, caseID, workflow.StageAssessment)
	assigned, err := h.activities.AssignActivities(ctx, caseID, doctor, []activity.AssignmentInput{
		{Name: "Syllable clapping", Type: activity.TypePhonics, Frequency: activity.FrequencyDaily, DurationMinutes: 15},
	})
	require.NoError(t, err)

	h.completeThrough(t, caseID, workflow.StageActivityAssignment)
	_, err = h.activities.RecordProgress(ctx, caseID, assigned[0].ID, parent, progressOn(h.clock.Now()))
	require.NoError(t, err)

	h.completeThrough(t, caseID, workflow.StageActivityTracking)
	_, err = h.evals.Upsert(ctx, caseID, doctor, evaluation.Fields{})
	require.NoError(t, err)
	return assigned[0]
}

func progressOn(day time.Time) activity.ProgressInput {
	return activity.ProgressInput{
		SessionDate:          day,
		CompletionPercentage: 90,
		StudentEngagement:    8,
		DifficultyLevel:      4,
	}
}

func TestFullWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)

	h.runToEvaluation(t, caseID)

	summary, err := h.assess.GetSummary(ctx, caseID, parent)
	require.NoError(t, err)
	assert.Equal(t, 70.0, summary.PercentageScore)
	assert.Equal(t, assessment.RiskLow, summary.RiskLevel)
	assert.False(t, summary.DyslexiaIndication)

	res, err := h.stages.CompleteStage(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Equal(t, 7, res.CurrentStage, "the last stage does not advance")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, res.CompletedStages)

	_, err = h.stages.CompleteStage(ctx, caseID, doctor)
	assert.ErrorIs(t, err, shared.ErrStageAlreadyCompleted)

	e, err := h.evals.Complete(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.True(t, e.CaseCompleted)
	assert.Equal(t, h.clock.Now(), *e.CompletionDate)

	assert.Contains(t, h.pub.types(), shared.EventCaseCompleted)
}

func TestCompleteStage_WrongRoleChangesNothing(t *testing.T) {
	h := newHarness(t)
	caseID := h.openCase(t)

	_, err := h.stages.CompleteStage(context.Background(), caseID, doctor)
	require.ErrorIs(t, err, shared.ErrRoleNotPermitted)

	cur, err := h.stages.Get(context.Background(), caseID, teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.CurrentStage)
	assert.Empty(t, cur.CompletedStages)
	assert.Empty(t, h.pub.types())
}

func TestOpenCase_OnlyTeachers(t *testing.T) {
	h := newHarness(t)
	_, err := h.cases.OpenCase(context.Background(), doctor, OpenCaseCommand{Name: "Dana", Gender: caseload.GenderFemale})
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestLinkCaregiver_Duplicate(t *testing.T) {
	h := newHarness(t)
	caseID := h.openCase(t)
	_, err := h.cases.LinkCaregiver(context.Background(), caseID, teacher, doctor.UserID, shared.RoleDoctor)
	assert.ErrorIs(t, err, shared.ErrDuplicateRecord)
}

func TestOutsiderIsRejected(t *testing.T) {
	h := newHarness(t)
	caseID := h.openCase(t)
	stranger := shared.Actor{UserID: "doctor-2", Role: shared.RoleDoctor}

	_, err := h.stages.Get(context.Background(), caseID, stranger)
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestDefineTasks_WrongStage(t *testing.T) {
	h := newHarness(t)
	caseID := h.openCase(t)

	_, err := h.tasks.DefineTasks(context.Background(), caseID, doctor, []assessment.TaskInput{{Name: "Reading", MaxScore: 10}})
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)
}

func TestDefineTasks_AllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.completeThrough(t, caseID, workflow.StageHandwriting)

	_, err := h.tasks.DefineTasks(ctx, caseID, doctor, []assessment.TaskInput{
		{Name: "Reading", MaxScore: 10},
		{Name: "Spelling", MaxScore: 0},
	})
	require.ErrorIs(t, err, shared.ErrOutOfRange)

	tasks, err := h.tasks.ListTasks(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestScoreTasks_AllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.completeThrough(t, caseID, workflow.StageHandwriting)
	tasks, err := h.tasks.DefineTasks(ctx, caseID, doctor, []assessment.TaskInput{
		{Name: "Reading", MaxScore: 10},
		{Name: "Spelling", MaxScore: 5},
	})
	require.NoError(t, err)
	h.completeThrough(t, caseID, workflow.StageTaskDefinition)

	_, err = h.tasks.ScoreTasks(ctx, caseID, teacher, []assessment.ScoreEntry{
		{TaskID: tasks[0].ID, Score: 9},
		{TaskID: tasks[1].ID, Score: 6},
	})
	require.ErrorIs(t, err, shared.ErrOutOfRange)

	scored, err := h.tasks.AllScored(ctx, caseID)
	require.NoError(t, err)
	assert.False(t, scored)
	stored, err := h.tasks.ListTasks(ctx, caseID, teacher)
	require.NoError(t, err)
	for _, task := range stored {
		assert.False(t, task.IsScored(), task.Name)
	}

	_, err = h.tasks.ScoreTasks(ctx, caseID, teacher, []assessment.ScoreEntry{{TaskID: "missing", Score: 1}})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSummary_RequiresScoredTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.completeThrough(t, caseID, workflow.StageTaskScoring)

	_, err := h.assess.CreateOrUpdateSummary(ctx, caseID, doctor, assessment.SummaryInput{Cutoff: "70"})
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)

	s, err := h.assess.GetSummary(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestAssignActivities_RequiresSummary(t *testing.T) {
	h := newHarness(t)
	caseID := h.openCase(t)
	h.completeThrough(t, caseID, workflow.StageAssessment)

	_, err := h.activities.AssignActivities(context.Background(), caseID, doctor, []activity.AssignmentInput{
		{Name: "Tracing", Type: activity.TypeWriting, Frequency: activity.FrequencyWeekly, DurationMinutes: 20},
	})
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)
	assert.ErrorIs(t, err, shared.ErrStage4Incomplete)
}

func TestRecordProgress_DuplicateDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	a := h.runToEvaluation(t, caseID)

	// A restart reopens assignment at stage 5 without the old activities.
	_, err := h.archiver.Restart(ctx, caseID, doctor)
	require.NoError(t, err)
	_, err = h.activities.RecordProgress(ctx, caseID, a.ID, parent, progressOn(h.clock.Now()))
	assert.ErrorIs(t, err, shared.ErrNotFound, "restart removes the live assignments")

	assigned, err := h.activities.AssignActivities(ctx, caseID, doctor, []activity.AssignmentInput{
		{Name: "Tracing", Type: activity.TypeWriting, Frequency: activity.FrequencyWeekly, DurationMinutes: 20},
	})
	require.NoError(t, err)
	h.completeThrough(t, caseID, workflow.StageActivityAssignment)

	day := h.clock.Now()
	_, err = h.activities.RecordProgress(ctx, caseID, assigned[0].ID, teacher, progressOn(day))
	require.NoError(t, err)
	_, err = h.activities.RecordProgress(ctx, caseID, assigned[0].ID, teacher, progressOn(day.Add(3*time.Hour)))
	assert.ErrorIs(t, err, shared.ErrDuplicateRecord)

	_, err = h.activities.RecordProgress(ctx, caseID, assigned[0].ID, parent, progressOn(day))
	require.NoError(t, err, "the other performer may report the same day")
}

func TestUpdateAssignmentAndProgress_Ownership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.completeThrough(t, caseID, workflow.StageHandwriting)
	tasks, err := h.tasks.DefineTasks(ctx, caseID, doctor, []assessment.TaskInput{{Name: "Reading", MaxScore: 10}})
	require.NoError(t, err)
	h.completeThrough(t, caseID, workflow.StageTaskDefinition)
	_, err = h.tasks.ScoreTasks(ctx, caseID, teacher, []assessment.ScoreEntry{{TaskID: tasks[0].ID, Score: 5}})
	require.NoError(t, err)
	h.completeThrough(t, caseID, workflow.StageTaskScoring)
	_, err = h.assess.CreateOrUpdateSummary(ctx, caseID, doctor, assessment.SummaryInput{Cutoff: "70"})
	require.NoError(t, err)
	h.completeThrough(t, caseID, workflow.StageAssessment)

	other := shared.Actor{UserID: "doctor-2", Role: shared.RoleDoctor}
	_, err = h.cases.LinkCaregiver(ctx, caseID, teacher, other.UserID, shared.RoleDoctor)
	require.NoError(t, err)

	assigned, err := h.activities.AssignActivities(ctx, caseID, doctor, []activity.AssignmentInput{
		{Name: "Rhymes", Type: activity.TypePhonics, Frequency: activity.FrequencyDaily, DurationMinutes: 10},
	})
	require.NoError(t, err)

	name := "Rhyming pairs"
	_, err = h.activities.UpdateAssignment(ctx, caseID, assigned[0].ID, other, activity.AssignmentPatch{Name: &name})
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
	updated, err := h.activities.UpdateAssignment(ctx, caseID, assigned[0].ID, doctor, activity.AssignmentPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	h.completeThrough(t, caseID, workflow.StageActivityAssignment)
	rec, err := h.activities.RecordProgress(ctx, caseID, assigned[0].ID, parent, progressOn(h.clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, shared.RoleParent, rec.Performer)

	notes := "needed prompts"
	_, err = h.activities.UpdateProgress(ctx, caseID, rec.ID, teacher, activity.ProgressPatch{Notes: &notes})
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
	got, err := h.activities.UpdateProgress(ctx, caseID, rec.ID, parent, activity.ProgressPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, got.Notes)

	_, err = h.activities.RecordProgress(ctx, caseID, assigned[0].ID, doctor, progressOn(h.clock.Now()))
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestEvaluation_DefaultsAndCompleteByAuthorOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)

	e, err := h.evals.Get(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Equal(t, 1, e.TherapySessionNumber)
	assert.Equal(t, evaluation.DecisionPending, e.TherapyDecision)
	assert.Equal(t, 5, e.DiagnosisConfidence)

	other := shared.Actor{UserID: "doctor-2", Role: shared.RoleDoctor}
	_, err = h.cases.LinkCaregiver(ctx, caseID, teacher, other.UserID, shared.RoleDoctor)
	require.NoError(t, err)
	_, err = h.evals.Complete(ctx, caseID, other)
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)

	_, err = h.evals.Complete(ctx, caseID, doctor)
	require.NoError(t, err)
	_, err = h.evals.Complete(ctx, caseID, doctor)
	assert.ErrorIs(t, err, shared.ErrAlreadyCompleted)
}

func TestRestart_ArchivesExactSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)
	h.clock.Advance(48 * time.Hour)

	before, err := SnapshotFromCurrentData(ctx, h.store.Repositories(), caseID, "preview", doctor, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, before.Seal(archive.OutcomeContinued))

	res, err := h.archiver.Restart(ctx, caseID, doctor)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Report.SessionNumber)
	assert.Equal(t, archive.OutcomeContinued, res.Report.Outcome)
	assert.Equal(t, before.Checksum, res.Report.Checksum)
	want, err := before.CanonicalPayload()
	require.NoError(t, err)
	stored, err := h.store.Repositories().Reports.Get(ctx, caseID, 1)
	require.NoError(t, err)
	got, err := stored.CanonicalPayload()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	require.NoError(t, stored.Verify())

	assert.Equal(t, 5, res.Stage.CurrentStage)
	assert.Equal(t, []int{1, 2, 3, 4}, res.Stage.CompletedStages)
	assert.Equal(t, 2, res.Evaluation.TherapySessionNumber)
	assert.Equal(t, evaluation.DecisionContinue, res.Evaluation.TherapyDecision)
	assert.False(t, res.Evaluation.CaseCompleted)

	live, err := h.store.Repositories().Activities.ListAssignments(ctx, caseID)
	require.NoError(t, err)
	assert.Empty(t, live)

	summary, err := h.assess.GetSummary(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.NotNil(t, summary, "earlier stage data is preserved")

	res, err = h.archiver.Restart(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.SessionNumber)
	assert.Empty(t, res.Report.Payload.Assignments)
	assert.Equal(t, 3, res.Evaluation.TherapySessionNumber)
}

func TestRestart_RequiresEvaluation(t *testing.T) {
	h := newHarness(t)
	caseID := h.openCase(t)

	_, err := h.archiver.Restart(context.Background(), caseID, doctor)
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)

	_, err = h.archiver.Restart(context.Background(), caseID, teacher)
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestTerminate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)

	_, err := h.archiver.Terminate(ctx, caseID, doctor, "  ")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	n, err := h.store.Repositories().Reports.LatestSessionNumber(ctx, caseID)
	require.NoError(t, err)
	assert.Zero(t, n, "a rejected terminate archives nothing")

	res, err := h.archiver.Terminate(ctx, caseID, doctor, "goals met")
	require.NoError(t, err)
	assert.Equal(t, archive.OutcomeTerminated, res.Report.Outcome)
	assert.True(t, res.Evaluation.CaseCompleted)
	assert.Equal(t, evaluation.DecisionTerminate, res.Evaluation.TherapyDecision)
	assert.Equal(t, "goals met", res.Evaluation.TherapyTerminationReason)
	assert.Equal(t, 7, res.Stage.CurrentStage)

	_, err = h.archiver.Terminate(ctx, caseID, doctor, "again")
	assert.ErrorIs(t, err, shared.ErrAlreadyCompleted)
	_, err = h.evals.Complete(ctx, caseID, doctor)
	assert.ErrorIs(t, err, shared.ErrAlreadyCompleted)

	reports, err := h.store.Repositories().Reports.List(ctx, caseID)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRestart_ConcurrentCallsGetUniqueSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)

	const n = 8
	var wg sync.WaitGroup
	sessions := make(chan int, n)
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.archiver.Restart(ctx, caseID, doctor)
			if err != nil {
				errs <- err
				return
			}
			sessions <- res.Report.SessionNumber
		}()
	}
	wg.Wait()
	close(sessions)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	var got []int
	for s := range sessions {
		got = append(got, s)
	}
	slices.Sort(got)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, got)

	e, err := h.evals.Get(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Equal(t, n+1, e.TherapySessionNumber)
}

func TestFailedCommitLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)
	published := len(h.pub.types())

	h.uow.fail.Store(true)
	_, err := h.archiver.Restart(ctx, caseID, doctor)
	require.ErrorIs(t, err, errCommit)
	assert.ErrorIs(t, err, shared.ErrInternal)
	h.uow.fail.Store(false)

	n, err := h.store.Repositories().Reports.LatestSessionNumber(ctx, caseID)
	require.NoError(t, err)
	assert.Zero(t, n)
	cur, err := h.stages.Get(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Equal(t, 7, cur.CurrentStage)
	live, err := h.store.Repositories().Activities.ListAssignments(ctx, caseID)
	require.NoError(t, err)
	assert.Len(t, live, 1)
	e, err := h.evals.Get(ctx, caseID, doctor)
	require.NoError(t, err)
	assert.Equal(t, 1, e.TherapySessionNumber)

	assert.Len(t, h.pub.types(), published, "nothing is published for a rolled back change")
}

func TestEventsArePublishedAfterCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)

	var seenStage int
	h.pub.onPub = func(e shared.Event) {
		if _, ok := e.(shared.StageCompletedEvent); !ok {
			return
		}
		p, err := h.store.Repositories().Progress.Get(ctx, caseID)
		if err == nil {
			seenStage = p.CurrentStage.Int()
		}
	}

	_, err := h.stages.CompleteStage(ctx, caseID, teacher)
	require.NoError(t, err)
	assert.Equal(t, 2, seenStage, "subscribers observe the committed stage")
	assert.Equal(t, []shared.EventType{shared.EventCaseOpened, shared.EventStageCompleted}, h.pub.types())
}
