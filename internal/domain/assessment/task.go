// Package assessment covers stages 1 to 4: handwriting analysis, doctor-defined
// tasks, teacher-entered scores, and the assessment summary with risk classification.
package assessment

import (
	"context"
	"strings"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Task is a doctor-defined assessment task scored by the teacher.
type Task struct {
	ID            string
	CaseID        string
	Name          string
	MaxScore      int
	ScoreObtained *int
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TaskInput is a task definition submitted by the doctor.
type TaskInput struct {
	Name     string
	MaxScore int
}

// NewTask validates a definition and creates an unscored task.
func NewTask(id, caseID string, in TaskInput, doctorID string, now time.Time) (*Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.NewDomainError("assessment", "DefineTasks", shared.ErrInvalidInput, "task name is required")
	}
	if in.MaxScore <= 0 {
		return nil, shared.Errorf("assessment", "DefineTasks", shared.ErrOutOfRange,
			"task %q: max score must be positive, got %d", name, in.MaxScore)
	}
	return &Task{
		ID:        id,
		CaseID:    caseID,
		Name:      name,
		MaxScore:  in.MaxScore,
		CreatedBy: doctorID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsScored reports whether a score has been entered.
func (t *Task) IsScored() bool {
	return t.ScoreObtained != nil
}

// CheckScore validates a score against the task bounds without mutating it.
func (t *Task) CheckScore(score int) error {
	if score < 0 || score > t.MaxScore {
		return shared.Errorf("assessment", "ScoreTasks", shared.ErrOutOfRange,
			"task %q: score %d is outside [0, %d]", t.Name, score, t.MaxScore)
	}
	return nil
}

// Score sets the obtained score.
func (t *Task) Score(score int, now time.Time) error {
	if err := t.CheckScore(score); err != nil {
		return err
	}
	t.ScoreObtained = &score
	t.UpdatedAt = now
	return nil
}

// ScoreEntry is one entry of a scoring batch.
type ScoreEntry struct {
	TaskID string
	Score  int
}

// AllScored reports whether every task has a score. An empty list counts as scored.
func AllScored(tasks []*Task) bool {
	for _, t := range tasks {
		if !t.IsScored() {
			return false
		}
	}
	return true
}

// TaskRepository persists assessment tasks.
type TaskRepository interface {
	// CreateBatch stores new tasks.
	CreateBatch(ctx context.Context, tasks []*Task) error

	// ListByCase returns the tasks of a case in creation order.
	ListByCase(ctx context.Context, caseID string) ([]*Task, error)

	// SaveScores persists the scores of the given tasks.
	SaveScores(ctx context.Context, tasks []*Task) error
}
