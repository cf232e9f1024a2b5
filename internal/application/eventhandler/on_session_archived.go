// Package eventhandler contains subscribers to domain events.
package eventhandler

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SESSION ARCHIVED HANDLER
// Drops the cached report list of a case once a new report is written.
// ═══════════════════════════════════════════════════════════════════════════

// CacheInvalidator removes cached data of a case.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, caseID string) error
}

// OnSessionArchivedHandler invalidates report caches.
type OnSessionArchivedHandler struct {
	cache  CacheInvalidator
	logger *logger.Logger
}

// NewOnSessionArchivedHandler creates the handler.
func NewOnSessionArchivedHandler(cache CacheInvalidator, log *logger.Logger) *OnSessionArchivedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnSessionArchivedHandler{cache: cache, logger: log.With(logger.Component("on_session_archived"))}
}

// Handle processes a SessionArchivedEvent. Other events are ignored.
func (h *OnSessionArchivedHandler) Handle(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.SessionArchivedEvent)
	if !ok {
		return nil
	}
	if err := h.cache.Invalidate(ctx, e.AggregateID()); err != nil {
		return err
	}
	h.logger.Debug("report cache invalidated",
		logger.CaseID(e.AggregateID()),
		logger.SessionNumber(e.SessionNumber),
	)
	return nil
}
