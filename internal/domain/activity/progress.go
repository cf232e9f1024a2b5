package activity

import (
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Status of a single activity session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusMissed     Status = "missed"
	StatusPaused     Status = "paused"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusMissed, StatusPaused:
		return true
	default:
		return false
	}
}

// ProgressRecord is one session of an activity performed by a teacher or parent.
// At most one record exists per (assignment, session date, performer).
type ProgressRecord struct {
	ID                   string
	AssignmentID         string
	CaseID               string
	SessionDate          time.Time
	Performer            shared.Role
	RecorderID           string
	Status               Status
	CompletionPercentage int
	Score                *int
	DurationActual       *int
	Notes                string
	Challenges           string
	Improvements         string
	StudentEngagement    int
	DifficultyLevel      int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProgressInput is a session report submitted by the performer.
type ProgressInput struct {
	SessionDate          time.Time
	Status               Status
	CompletionPercentage int
	Score                *int
	DurationActual       *int
	Notes                string
	Challenges           string
	Improvements         string
	StudentEngagement    int
	DifficultyLevel      int
}

// NewProgressRecord creates a record. The performer comes from the actor's role.
func NewProgressRecord(id string, a *Assignment, actor shared.Actor, in ProgressInput, now time.Time) (*ProgressRecord, error) {
	if actor.Role != shared.RoleTeacher && actor.Role != shared.RoleParent {
		return nil, shared.Errorf("activity", "RecordProgress", shared.ErrRoleNotPermitted,
			"role %s cannot record progress", actor.Role)
	}
	r := &ProgressRecord{
		ID:                   id,
		AssignmentID:         a.ID,
		CaseID:               a.CaseID,
		SessionDate:          shared.Date(in.SessionDate),
		Performer:            actor.Role,
		RecorderID:           actor.UserID,
		Status:               in.Status,
		CompletionPercentage: in.CompletionPercentage,
		Score:                in.Score,
		DurationActual:       in.DurationActual,
		Notes:                in.Notes,
		Challenges:           in.Challenges,
		Improvements:         in.Improvements,
		StudentEngagement:    in.StudentEngagement,
		DifficultyLevel:      in.DifficultyLevel,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if r.Status == "" {
		r.Status = StatusCompleted
	}
	if in.SessionDate.IsZero() {
		r.SessionDate = shared.Date(now)
	}
	if err := r.validate("RecordProgress"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ProgressRecord) validate(op string) error {
	if !r.Status.IsValid() {
		return shared.Errorf("activity", op, shared.ErrInvalidInput, "unknown status %q", r.Status)
	}
	if err := shared.RequireRange("activity", "completion percentage", r.CompletionPercentage, 0, 100); err != nil {
		return err
	}
	if r.Score != nil {
		if err := shared.RequireRange("activity", "score", *r.Score, 0, 10); err != nil {
			return err
		}
	}
	if r.DurationActual != nil && *r.DurationActual < 0 {
		return shared.NewDomainError("activity", op, shared.ErrOutOfRange, "actual duration cannot be negative")
	}
	if err := shared.RequireRange("activity", "student engagement", r.StudentEngagement, 1, 10); err != nil {
		return err
	}
	return shared.RequireRange("activity", "difficulty level", r.DifficultyLevel, 1, 10)
}

// ProgressPatch holds optional changes to a record.
type ProgressPatch struct {
	SessionDate          *time.Time
	Status               *Status
	CompletionPercentage *int
	Score                *int
	DurationActual       *int
	Notes                *string
	Challenges           *string
	Improvements         *string
	StudentEngagement    *int
	DifficultyLevel      *int
}

// Apply validates and applies the patch. The record is unchanged on error.
func (r *ProgressRecord) Apply(p ProgressPatch, now time.Time) error {
	next := *r
	if p.SessionDate != nil {
		next.SessionDate = shared.Date(*p.SessionDate)
	}
	setIf(&next.Status, p.Status)
	setIf(&next.CompletionPercentage, p.CompletionPercentage)
	if p.Score != nil {
		v := *p.Score
		next.Score = &v
	}
	if p.DurationActual != nil {
		v := *p.DurationActual
		next.DurationActual = &v
	}
	setIf(&next.Notes, p.Notes)
	setIf(&next.Challenges, p.Challenges)
	setIf(&next.Improvements, p.Improvements)
	setIf(&next.StudentEngagement, p.StudentEngagement)
	setIf(&next.DifficultyLevel, p.DifficultyLevel)
	if err := next.validate("UpdateProgress"); err != nil {
		return err
	}
	next.UpdatedAt = now
	*r = next
	return nil
}

// Tracked is an assignment annotated with its progress history.
type Tracked struct {
	Assignment        *Assignment
	History           []*ProgressRecord
	TotalSessions     int
	CompletedSessions int
}

// Track groups records under their assignments. Records of assignments not in
// the list are ignored. History keeps the order of records.
func Track(assignments []*Assignment, records []*ProgressRecord) []Tracked {
	index := make(map[string]int, len(assignments))
	out := make([]Tracked, len(assignments))
	for i, a := range assignments {
		index[a.ID] = i
		out[i] = Tracked{Assignment: a, History: []*ProgressRecord{}}
	}
	for _, r := range records {
		i, ok := index[r.AssignmentID]
		if !ok {
			continue
		}
		out[i].History = append(out[i].History, r)
		out[i].TotalSessions++
		if r.Status == StatusCompleted {
			out[i].CompletedSessions++
		}
	}
	return out
}
