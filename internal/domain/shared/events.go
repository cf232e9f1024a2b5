package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	EventCaseOpened        EventType = "case.opened"
	EventStageCompleted    EventType = "workflow.stage_completed"
	EventSummaryRecorded   EventType = "assessment.summary_recorded"
	EventSessionArchived   EventType = "archive.session_archived"
	EventCaseCompleted     EventType = "evaluation.case_completed"
	EventHandwritingStored EventType = "handwriting.analyzed"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the case the event belongs to.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	ActorID     string    `json:"actor_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, caseID string, actor Actor) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: caseID,
		ActorID:     actor.UserID,
	}
}

// CaseOpenedEvent is emitted when a teacher opens a new case.
type CaseOpenedEvent struct {
	BaseEvent
	TeacherID string `json:"teacher_id"`
}

// StageCompletedEvent is emitted after a stage is marked complete.
type StageCompletedEvent struct {
	BaseEvent
	CompletedStage int `json:"completed_stage"`
	CurrentStage   int `json:"current_stage"`
}

// SummaryRecordedEvent is emitted when the assessment summary is upserted.
type SummaryRecordedEvent struct {
	BaseEvent
	Percentage float64 `json:"percentage"`
	RiskLevel  string  `json:"risk_level"`
}

// SessionArchivedEvent is emitted when a therapy session report is created.
type SessionArchivedEvent struct {
	BaseEvent
	SessionNumber int    `json:"session_number"`
	Outcome       string `json:"outcome"`
}

// CaseCompletedEvent is emitted when the live evaluation is marked complete.
type CaseCompletedEvent struct {
	BaseEvent
	CompletedAt time.Time `json:"completed_at"`
}

// HandwritingAnalyzedEvent is emitted after a stage 1 sample is analyzed.
type HandwritingAnalyzedEvent struct {
	BaseEvent
	Score float64 `json:"score"`
}

// EventPublisher delivers domain events after the owning transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
