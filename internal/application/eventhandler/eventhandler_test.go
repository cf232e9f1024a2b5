package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

var doctor = shared.Actor{UserID: "doctor-1", Role: shared.RoleDoctor}

type fakeCache struct {
	err     error
	dropped []string
}

func (c *fakeCache) Invalidate(_ context.Context, caseID string) error {
	if c.err != nil {
		return c.err
	}
	c.dropped = append(c.dropped, caseID)
	return nil
}

func archived(caseID string) shared.SessionArchivedEvent {
	return shared.SessionArchivedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventSessionArchived, caseID, doctor),
		SessionNumber: 2,
		Outcome:       "continued",
	}
}

func TestOnSessionArchived_InvalidatesCase(t *testing.T) {
	cache := &fakeCache{}
	h := NewOnSessionArchivedHandler(cache, nil)

	require.NoError(t, h.Handle(context.Background(), archived("case-1")))
	require.NoError(t, h.Handle(context.Background(), shared.CaseOpenedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventCaseOpened, "case-2", doctor),
	}))
	assert.Equal(t, []string{"case-1"}, cache.dropped)
}

func TestOnSessionArchived_PropagatesCacheError(t *testing.T) {
	down := errors.New("redis: connection refused")
	h := NewOnSessionArchivedHandler(&fakeCache{err: down}, nil)
	assert.ErrorIs(t, h.Handle(context.Background(), archived("case-1")), down)
}

func TestAuditHandler_LogsEventFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewAuditHandler(logger.FromZap(zap.New(core)))

	require.NoError(t, h.Handle(context.Background(), archived("case-1")))
	require.NoError(t, h.Handle(context.Background(), shared.StageCompletedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventStageCompleted, "case-1", doctor),
		CompletedStage: 4,
		CurrentStage:   5,
	}))

	entries := logs.FilterMessage("domain event").AllUntimed()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "audit", first["component"])
	assert.Equal(t, "case-1", first["case_id"])
	assert.Equal(t, int64(2), first["session_number"])
	assert.Equal(t, "continued", first["outcome"])

	second := entries[1].ContextMap()
	assert.Equal(t, int64(4), second["stage"])
	assert.Equal(t, int64(5), second["current_stage"])
}
