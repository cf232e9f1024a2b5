// Package activity covers stages 5 and 6: doctor-assigned therapeutic activities
// and the progress sessions teachers and parents record against them.
package activity

import (
	"strings"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Type is the therapeutic area an activity trains.
type Type string

const (
	TypeReading      Type = "reading"
	TypeWriting      Type = "writing"
	TypePhonics      Type = "phonics"
	TypeMemory       Type = "memory"
	TypeCoordination Type = "coordination"
	TypeVisual       Type = "visual"
	TypeAuditory     Type = "auditory"
	TypeCognitive    Type = "cognitive"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeReading, TypeWriting, TypePhonics, TypeMemory,
		TypeCoordination, TypeVisual, TypeAuditory, TypeCognitive:
		return true
	default:
		return false
	}
}

// Frequency is how often an activity should be performed.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// Difficulty of an activity.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Audience is who is expected to run the activity with the student.
type Audience string

const (
	AudienceTeacher Audience = "teacher"
	AudienceParent  Audience = "parent"
	AudienceBoth    Audience = "both"
)

func (a Audience) IsValid() bool {
	switch a {
	case AudienceTeacher, AudienceParent, AudienceBoth:
		return true
	default:
		return false
	}
}

// Assignment is a therapeutic activity a doctor assigns to a case.
type Assignment struct {
	ID               string
	CaseID           string
	Name             string
	Type             Type
	Description      string
	Instructions     string
	Difficulty       Difficulty
	Frequency        Frequency
	DurationMinutes  int
	TargetAudience   Audience
	ExpectedOutcomes string
	SuccessCriteria  string
	IsActive         bool
	DoctorID         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AssignmentInput is an activity submitted by the doctor.
type AssignmentInput struct {
	Name             string
	Type             Type
	Description      string
	Instructions     string
	Difficulty       Difficulty
	Frequency        Frequency
	DurationMinutes  int
	TargetAudience   Audience
	ExpectedOutcomes string
	SuccessCriteria  string
}

// NewAssignment validates input and creates an active assignment owned by the doctor.
func NewAssignment(id, caseID string, in AssignmentInput, doctorID string, now time.Time) (*Assignment, error) {
	a := &Assignment{
		ID:               id,
		CaseID:           caseID,
		Name:             strings.TrimSpace(in.Name),
		Type:             in.Type,
		Description:      in.Description,
		Instructions:     in.Instructions,
		Difficulty:       in.Difficulty,
		Frequency:        in.Frequency,
		DurationMinutes:  in.DurationMinutes,
		TargetAudience:   in.TargetAudience,
		ExpectedOutcomes: in.ExpectedOutcomes,
		SuccessCriteria:  in.SuccessCriteria,
		IsActive:         true,
		DoctorID:         doctorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if a.Difficulty == "" {
		a.Difficulty = DifficultyMedium
	}
	if a.TargetAudience == "" {
		a.TargetAudience = AudienceBoth
	}
	if err := a.validate("AssignActivities"); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Assignment) validate(op string) error {
	if a.Name == "" {
		return shared.NewDomainError("activity", op, shared.ErrInvalidInput, "activity name is required")
	}
	if !a.Type.IsValid() {
		return shared.Errorf("activity", op, shared.ErrInvalidInput, "activity %q: unknown type %q", a.Name, a.Type)
	}
	if !a.Frequency.IsValid() {
		return shared.Errorf("activity", op, shared.ErrInvalidInput, "activity %q: unknown frequency %q", a.Name, a.Frequency)
	}
	if !a.Difficulty.IsValid() {
		return shared.Errorf("activity", op, shared.ErrInvalidInput, "activity %q: unknown difficulty %q", a.Name, a.Difficulty)
	}
	if !a.TargetAudience.IsValid() {
		return shared.Errorf("activity", op, shared.ErrInvalidInput, "activity %q: unknown target audience %q", a.Name, a.TargetAudience)
	}
	if a.DurationMinutes <= 0 {
		return shared.Errorf("activity", op, shared.ErrOutOfRange, "activity %q: duration must be positive", a.Name)
	}
	return nil
}

// AssignmentPatch holds optional changes to an assignment.
type AssignmentPatch struct {
	Name             *string
	Type             *Type
	Description      *string
	Instructions     *string
	Difficulty       *Difficulty
	Frequency        *Frequency
	DurationMinutes  *int
	TargetAudience   *Audience
	ExpectedOutcomes *string
	SuccessCriteria  *string
	IsActive         *bool
}

// Apply validates and applies the patch. The assignment is unchanged on error.
func (a *Assignment) Apply(p AssignmentPatch, now time.Time) error {
	next := *a
	setIf(&next.Name, p.Name)
	next.Name = strings.TrimSpace(next.Name)
	setIf(&next.Type, p.Type)
	setIf(&next.Description, p.Description)
	setIf(&next.Instructions, p.Instructions)
	setIf(&next.Difficulty, p.Difficulty)
	setIf(&next.Frequency, p.Frequency)
	setIf(&next.DurationMinutes, p.DurationMinutes)
	setIf(&next.TargetAudience, p.TargetAudience)
	setIf(&next.ExpectedOutcomes, p.ExpectedOutcomes)
	setIf(&next.SuccessCriteria, p.SuccessCriteria)
	setIf(&next.IsActive, p.IsActive)
	if err := next.validate("UpdateAssignment"); err != nil {
		return err
	}
	next.UpdatedAt = now
	*a = next
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
