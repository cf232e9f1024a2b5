package command

import (
	"context"
	"errors"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION ARCHIVER
// Snapshot the live session into a report, then close or reset the case.
// Both steps share one transaction with the stage progress row locked.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionResult is the outcome of a session transition.
type TransitionResult struct {
	Report     *archive.Report
	Evaluation *evaluation.FinalEvaluation
	Stage      StageResult
}

// SessionArchiver terminates or restarts therapy.
type SessionArchiver struct {
	deps Deps
}

func NewSessionArchiver(deps Deps) *SessionArchiver {
	return &SessionArchiver{deps: deps.withDefaults()}
}

// Terminate archives the session as terminated and closes the case.
func (a *SessionArchiver) Terminate(ctx context.Context, caseID string, actor shared.Actor, reason string) (res TransitionResult, err error) {
	const op = "Terminate"
	started := a.deps.now()
	ctx, span := a.deps.span(ctx, op, caseID, actor)
	defer func() { a.deps.end(span, op, caseID, actor, started, err) }()

	err = a.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, e, err := a.prepare(ctx, repos, caseID, actor)
		if err != nil {
			return err
		}
		if e.CaseCompleted {
			return shared.ErrCaseCompleted
		}
		report, err := a.snapshot(ctx, repos, caseID, actor, archive.OutcomeTerminated)
		if err != nil {
			return err
		}
		if err := e.Terminate(reason, a.deps.now()); err != nil {
			return err
		}
		if err := repos.Evaluations.Save(ctx, e); err != nil {
			return err
		}
		res = TransitionResult{Report: report, Evaluation: e, Stage: stageResult(s.progress)}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	a.deps.publish(ctx,
		shared.SessionArchivedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventSessionArchived, caseID, actor),
			SessionNumber: res.Report.SessionNumber,
			Outcome:       string(res.Report.Outcome),
		},
		shared.CaseCompletedEvent{
			BaseEvent:   shared.NewBaseEvent(shared.EventCaseCompleted, caseID, actor),
			CompletedAt: *res.Evaluation.CompletionDate,
		},
	)
	return res, nil
}

// Restart archives the session as continued, clears the live activities and
// opens the next session at stage 5.
func (a *SessionArchiver) Restart(ctx context.Context, caseID string, actor shared.Actor) (res TransitionResult, err error) {
	const op = "Restart"
	started := a.deps.now()
	ctx, span := a.deps.span(ctx, op, caseID, actor)
	defer func() { a.deps.end(span, op, caseID, actor, started, err) }()

	err = a.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, e, err := a.prepare(ctx, repos, caseID, actor)
		if err != nil {
			return err
		}

		report, err := a.snapshot(ctx, repos, caseID, actor, archive.OutcomeContinued)
		if err != nil {
			return err
		}
		if err := repos.Activities.DeleteByCase(ctx, caseID); err != nil {
			return err
		}
		e.ContinueNextSession(a.deps.now())
		if err := repos.Evaluations.Save(ctx, e); err != nil {
			return err
		}
		if err := resetForNewSession(ctx, repos, s.progress, a.deps); err != nil {
			return err
		}
		res = TransitionResult{Report: report, Evaluation: e, Stage: stageResult(s.progress)}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	a.deps.Logger.Info("therapy restarted",
		logger.CaseID(caseID),
		logger.SessionNumber(res.Evaluation.TherapySessionNumber),
	)
	a.deps.publish(ctx, shared.SessionArchivedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventSessionArchived, caseID, actor),
		SessionNumber: res.Report.SessionNumber,
		Outcome:       string(res.Report.Outcome),
	})
	return res, nil
}

// prepare locks the case, authorizes a linked doctor and loads the evaluation.
func (a *SessionArchiver) prepare(ctx context.Context, repos port.Repositories, caseID string, actor shared.Actor) (scope, *evaluation.FinalEvaluation, error) {
	s, err := loadScope(ctx, repos, caseID, true)
	if err != nil {
		return scope{}, nil, err
	}
	if err := s.authorize("Archive", actor, roles(shared.RoleDoctor)); err != nil {
		return scope{}, nil, err
	}
	e, err := repos.Evaluations.Get(ctx, caseID)
	if errors.Is(err, shared.ErrNotFound) {
		return scope{}, nil, shared.ErrNoEvaluation
	}
	if err != nil {
		return scope{}, nil, err
	}
	return s, e, nil
}

// snapshot builds, seals and stores the report of the live session.
func (a *SessionArchiver) snapshot(ctx context.Context, repos port.Repositories, caseID string, actor shared.Actor, outcome archive.Outcome) (*archive.Report, error) {
	report, err := SnapshotFromCurrentData(ctx, repos, caseID, a.deps.NewID(), actor, a.deps.now())
	if err != nil {
		return nil, err
	}
	if err := report.Seal(outcome); err != nil {
		return nil, err
	}
	if err := repos.Reports.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// SnapshotFromCurrentData reads the live session of a case and builds its report
// with outcome ongoing. It writes nothing.
func SnapshotFromCurrentData(ctx context.Context, repos port.Repositories, caseID, reportID string, actor shared.Actor, now time.Time) (*archive.Report, error) {
	latest, err := repos.Reports.LatestSessionNumber(ctx, caseID)
	if err != nil {
		return nil, err
	}
	assignments, err := repos.Activities.ListAssignments(ctx, caseID)
	if err != nil {
		return nil, err
	}
	records, err := repos.Activities.ListRecords(ctx, caseID)
	if err != nil {
		return nil, err
	}
	e, err := repos.Evaluations.Get(ctx, caseID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return archive.SnapshotFromCurrentData(archive.SnapshotInput{
		ReportID:      reportID,
		CaseID:        caseID,
		LatestSession: latest,
		Assignments:   assignments,
		Records:       records,
		Evaluation:    e,
		ArchivedBy:    actor.UserID,
		Now:           now,
	}), nil
}
