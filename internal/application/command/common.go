// Package command contains write operations (CQRS - Commands).
//
// Every operation takes an explicit shared.Actor, authorizes it against the
// case roster and the current stage, and runs its writes in one transaction.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

var tracer = otel.Tracer("github.com/dyslexia-hub/therapy-workflow/internal/application/command")

// Deps are the collaborators shared by all command handlers.
type Deps struct {
	UoW       port.UnitOfWork
	Publisher shared.EventPublisher
	Logger    *logger.Logger
	Clock     shared.Clock
	NewID     func() string
	Roles     workflow.RoleTable
}

// withDefaults fills optional collaborators.
func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = shared.SystemClock
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
	if d.Roles == nil {
		d.Roles = workflow.DefaultRoleTable()
	}
	return d
}

func (d Deps) now() time.Time {
	return d.Clock()
}

// span starts a span for a command operation.
func (d Deps) span(ctx context.Context, op, caseID string, actor shared.Actor) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("case.id", caseID),
		attribute.String("actor.id", actor.UserID),
		attribute.String("actor.role", actor.Role.String()),
	))
}

// end closes the span and logs the outcome.
func (d Deps) end(span trace.Span, op, caseID string, actor shared.Actor, started time.Time, err error) {
	fields := []logger.Field{
		logger.Operation(op),
		logger.CaseID(caseID),
		logger.ActorID(actor.UserID),
		logger.Role(actor.Role.String()),
		logger.Latency(time.Since(started)),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if shared.KindOf(err) == shared.ErrInternal {
			d.Logger.Error("command failed", append(fields, logger.Err(err))...)
		} else {
			d.Logger.Info("command rejected", append(fields, logger.Err(err))...)
		}
	} else {
		d.Logger.Info("command completed", fields...)
	}
	span.End()
}

// publish delivers events after commit. Delivery failures are logged, the
// committed change stands.
func (d Deps) publish(ctx context.Context, events ...shared.Event) {
	if len(events) == 0 {
		return
	}
	if err := d.Publisher.Publish(ctx, events...); err != nil {
		d.Logger.Warn("event delivery failed", logger.Err(err), logger.Int("events", len(events)))
	}
}

// scope is the roster and stage state of a case, loaded inside a transaction.
type scope struct {
	roster   caseload.Roster
	progress *workflow.Progress
}

// loadScope reads the roster and the progress. Writes gated on the stage or
// the live session pass forUpdate so they serialize with stage completion and
// session archival on the progress row.
func loadScope(ctx context.Context, repos port.Repositories, caseID string, forUpdate bool) (scope, error) {
	roster, err := caseload.LoadRoster(ctx, repos.Cases, caseID)
	if err != nil {
		return scope{}, err
	}
	var p *workflow.Progress
	if forUpdate {
		p, err = repos.Progress.GetForUpdate(ctx, caseID)
	} else {
		p, err = repos.Progress.Get(ctx, caseID)
	}
	if err != nil {
		return scope{}, err
	}
	return scope{roster: roster, progress: p}, nil
}

// authorize checks roster membership with one of roles, then the stage gate.
func (s scope) authorize(op string, actor shared.Actor, roles []shared.Role, stages ...workflow.Stage) error {
	if err := s.roster.Authorize(actor, roles...); err != nil {
		return err
	}
	if len(stages) == 0 {
		return nil
	}
	return s.progress.RequireStage(op, stages...)
}

func roles(rs ...shared.Role) []shared.Role { return rs }
