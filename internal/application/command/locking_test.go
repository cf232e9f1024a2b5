package command

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// callLog records repository calls made inside transactions.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

type tracedProgress struct {
	workflow.Repository
	log *callLog
}

func (r tracedProgress) Get(ctx context.Context, caseID string) (*workflow.Progress, error) {
	r.log.add("progress.get")
	return r.Repository.Get(ctx, caseID)
}

func (r tracedProgress) GetForUpdate(ctx context.Context, caseID string) (*workflow.Progress, error) {
	r.log.add("progress.lock")
	return r.Repository.GetForUpdate(ctx, caseID)
}

type tracedEvaluations struct {
	evaluation.Repository
	log *callLog
}

func (r tracedEvaluations) Get(ctx context.Context, caseID string) (*evaluation.FinalEvaluation, error) {
	r.log.add("evaluation.get")
	return r.Repository.Get(ctx, caseID)
}

func (r tracedEvaluations) Save(ctx context.Context, e *evaluation.FinalEvaluation) error {
	r.log.add("evaluation.save")
	return r.Repository.Save(ctx, e)
}

// tracingUoW decorates the progress and evaluation repositories of every
// transaction with call logging.
type tracingUoW struct {
	port.UnitOfWork
	log *callLog
}

func (u tracingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	return u.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		repos.Progress = tracedProgress{Repository: repos.Progress, log: u.log}
		repos.Evaluations = tracedEvaluations{Repository: repos.Evaluations, log: u.log}
		return fn(ctx, repos)
	})
}

// assertLockedBeforeEvaluation checks that the progress row was locked, never
// read unlocked, and locked before the evaluation was read.
func assertLockedBeforeEvaluation(t *testing.T, calls []string) {
	t.Helper()
	lock := slices.Index(calls, "progress.lock")
	get := slices.Index(calls, "evaluation.get")
	require.NotEqual(t, -1, lock, "calls: %v", calls)
	require.NotEqual(t, -1, get, "calls: %v", calls)
	assert.Less(t, lock, get, "calls: %v", calls)
	assert.NotContains(t, calls, "progress.get")
}

func TestSessionWrites_LockProgressBeforeReadingTheEvaluation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)

	log := &callLog{}
	deps := h.deps
	deps.UoW = tracingUoW{UnitOfWork: h.uow, log: log}
	evals := NewFinalEvaluationController(deps)
	recs := NewRecommendationStore(deps)
	archiver := NewSessionArchiver(deps)

	log.reset()
	_, err := evals.Upsert(ctx, caseID, doctor, evaluation.Fields{})
	require.NoError(t, err)
	assertLockedBeforeEvaluation(t, log.snapshot())

	log.reset()
	_, err = recs.Upsert(ctx, caseID, parent, evaluation.RecommendationFields{Observations: "reads slowly"})
	require.NoError(t, err)
	assertLockedBeforeEvaluation(t, log.snapshot())

	log.reset()
	_, err = archiver.Restart(ctx, caseID, doctor)
	require.NoError(t, err)
	assertLockedBeforeEvaluation(t, log.snapshot())
}

// An evaluation edit that queues behind a restart sees the restarted stage
// and must not write the old session back.
func TestEvaluationUpsertAfterRestart_KeepsNewSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caseID := h.openCase(t)
	h.runToEvaluation(t, caseID)

	_, err := h.archiver.Restart(ctx, caseID, doctor)
	require.NoError(t, err)

	_, err = h.evals.Upsert(ctx, caseID, doctor, evaluation.Fields{})
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)

	e, err := h.evals.Get(ctx, caseID, doctor)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 2, e.TherapySessionNumber)
	assert.False(t, e.CaseCompleted)
}
