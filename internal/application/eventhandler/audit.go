package eventhandler

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// AuditHandler writes one structured log line per domain event.
type AuditHandler struct {
	logger *logger.Logger
}

func NewAuditHandler(log *logger.Logger) *AuditHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditHandler{logger: log.With(logger.Component("audit"))}
}

func (h *AuditHandler) Handle(_ context.Context, event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.CaseID(event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	switch e := event.(type) {
	case shared.StageCompletedEvent:
		fields = append(fields, logger.Stage(e.CompletedStage), logger.Int("current_stage", e.CurrentStage))
	case shared.SessionArchivedEvent:
		fields = append(fields, logger.SessionNumber(e.SessionNumber), logger.String("outcome", e.Outcome))
	}
	h.logger.Info("domain event", fields...)
	return nil
}
