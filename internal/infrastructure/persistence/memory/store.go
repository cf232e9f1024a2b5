// Package memory is an in-process store implementing every repository and the
// unit of work. Transactions are serialized by a mutex and run against a copy
// of the state; commit swaps the copy in, rollback drops it.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

type recKey struct {
	caseID, stakeholderID string
	session               int
}

// state holds entity values. Stored values are never mutated in place, so a
// shallow copy of the maps is an independent snapshot.
type state struct {
	cases           map[string]caseload.Case
	links           map[string][]caseload.Link
	progress        map[string]workflow.Progress
	tasks           map[string]assessment.Task
	summaries       map[string]assessment.Summary
	handwriting     map[string]assessment.HandwritingAnalysis
	assignments     map[string]activity.Assignment
	records         map[string]activity.ProgressRecord
	evaluations     map[string]evaluation.FinalEvaluation
	recommendations map[recKey]evaluation.Recommendation
	reports         map[string][]archive.Report
	seq             int64
	order           map[string]int64
}

func newState() *state {
	return &state{
		cases:           map[string]caseload.Case{},
		links:           map[string][]caseload.Link{},
		progress:        map[string]workflow.Progress{},
		tasks:           map[string]assessment.Task{},
		summaries:       map[string]assessment.Summary{},
		handwriting:     map[string]assessment.HandwritingAnalysis{},
		assignments:     map[string]activity.Assignment{},
		records:         map[string]activity.ProgressRecord{},
		evaluations:     map[string]evaluation.FinalEvaluation{},
		recommendations: map[recKey]evaluation.Recommendation{},
		reports:         map[string][]archive.Report{},
		order:           map[string]int64{},
	}
}

func (s *state) clone() *state {
	return &state{
		cases:           maps.Clone(s.cases),
		links:           maps.Clone(s.links),
		progress:        maps.Clone(s.progress),
		tasks:           maps.Clone(s.tasks),
		summaries:       maps.Clone(s.summaries),
		handwriting:     maps.Clone(s.handwriting),
		assignments:     maps.Clone(s.assignments),
		records:         maps.Clone(s.records),
		evaluations:     maps.Clone(s.evaluations),
		recommendations: maps.Clone(s.recommendations),
		reports:         maps.Clone(s.reports),
		seq:             s.seq,
		order:           maps.Clone(s.order),
	}
}

// insertOrder records insertion order for stable listing.
func (s *state) insertOrder(id string) {
	if _, ok := s.order[id]; ok {
		return
	}
	s.seq++
	s.order[id] = s.seq
}

// access runs a read or write against some state.
type access interface {
	read(fn func(*state) error) error
	write(fn func(*state) error) error
}

// Store is the in-memory database.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// read runs fn against the committed state.
func (s *Store) read(fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// write runs one autocommit write. fn validates before it mutates.
func (s *Store) write(fn func(*state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	next := s.snapshot()
	if err := fn(next); err != nil {
		return err
	}
	s.commit(next)
	return nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.clone()
}

func (s *Store) commit(next *state) {
	s.mu.Lock()
	s.st = next
	s.mu.Unlock()
}

// txAccess works on a private copy owned by one transaction.
type txAccess struct {
	st *state
}

func (t txAccess) read(fn func(*state) error) error  { return fn(t.st) }
func (t txAccess) write(fn func(*state) error) error { return fn(t.st) }

// Repositories returns autocommit repositories.
func (s *Store) Repositories() port.Repositories {
	return repositories(s)
}

// WithinTx runs fn in a serialized copy-on-write transaction.
// A panic in fn propagates; the copy is never committed.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return shared.WrapError("memory", "Begin", shared.ErrInternal, "transaction not started", err)
	}

	next := s.snapshot()
	if err := fn(ctx, repositories(txAccess{st: next})); err != nil {
		return err
	}
	s.commit(next)
	return nil
}

func repositories(a access) port.Repositories {
	return port.Repositories{
		Cases:           &caseRepo{a: a},
		Progress:        &progressRepo{a: a},
		Tasks:           &taskRepo{a: a},
		Summaries:       &summaryRepo{a: a},
		Handwriting:     &handwritingRepo{a: a},
		Activities:      &activityRepo{a: a},
		Evaluations:     &evaluationRepo{a: a},
		Recommendations: &recommendationRepo{a: a},
		Reports:         &reportRepo{a: a},
	}
}

var _ port.UnitOfWork = (*Store)(nil)
