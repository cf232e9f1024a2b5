// Package evaluation covers stage 7: the doctor's final evaluation of a case and
// the per-session recommendations teachers and parents contribute to it.
package evaluation

import (
	"context"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// Decision is the doctor's therapy decision.
type Decision string

const (
	DecisionPending   Decision = "pending"
	DecisionTerminate Decision = "terminate"
	DecisionContinue  Decision = "continue"
)

func (d Decision) IsValid() bool {
	switch d {
	case DecisionPending, DecisionTerminate, DecisionContinue:
		return true
	default:
		return false
	}
}

// Diagnosis is the final clinical diagnosis.
type Diagnosis string

const (
	DiagnosisNone                      Diagnosis = "no_dyslexia"
	DiagnosisMild                      Diagnosis = "mild_dyslexia"
	DiagnosisModerate                  Diagnosis = "moderate_dyslexia"
	DiagnosisSevere                    Diagnosis = "severe_dyslexia"
	DiagnosisRequiresFurtherAssessment Diagnosis = "requires_further_assessment"
)

func (d Diagnosis) IsValid() bool {
	switch d {
	case DiagnosisNone, DiagnosisMild, DiagnosisModerate, DiagnosisSevere, DiagnosisRequiresFurtherAssessment:
		return true
	default:
		return false
	}
}

// Priority is the urgency of intervention.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Narrative holds the free-text sections of an evaluation.
type Narrative struct {
	HandwritingAnalysisSummary string
	TaskPerformanceSummary     string
	ActivityProgressSummary    string
	SupportingEvidence         string
	ShortTermGoals             string
	LongTermGoals              string
	RecommendedInterventions   string
	FollowUpTimeline           string
	MonitoringIndicators       string
	ClinicalNotes              string
	ReferralsNeeded            string
	TherapyTerminationReason   string
}

// FinalEvaluation is the live stage 7 evaluation of a case. It is carried across
// therapy sessions; history lives in session reports.
type FinalEvaluation struct {
	ID                   string
	CaseID               string
	TherapySessionNumber int
	TherapyDecision      Decision
	FinalDiagnosis       Diagnosis
	DiagnosisConfidence  int
	InterventionPriority Priority
	Narrative
	CaseCompleted  bool
	CompletionDate *time.Time
	DoctorID       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Fields is a partial update of an evaluation. Nil fields are left untouched.
type Fields struct {
	TherapyDecision            *Decision
	FinalDiagnosis             *Diagnosis
	DiagnosisConfidence        *int
	InterventionPriority       *Priority
	HandwritingAnalysisSummary *string
	TaskPerformanceSummary     *string
	ActivityProgressSummary    *string
	SupportingEvidence         *string
	ShortTermGoals             *string
	LongTermGoals              *string
	RecommendedInterventions   *string
	FollowUpTimeline           *string
	MonitoringIndicators       *string
	ClinicalNotes              *string
	ReferralsNeeded            *string
	TherapyTerminationReason   *string
}

// New creates the first evaluation of a case with clinical defaults, then applies fields.
func New(id, caseID, doctorID string, f Fields, now time.Time) (*FinalEvaluation, error) {
	e := &FinalEvaluation{
		ID:                   id,
		CaseID:               caseID,
		TherapySessionNumber: 1,
		TherapyDecision:      DecisionPending,
		FinalDiagnosis:       DiagnosisRequiresFurtherAssessment,
		DiagnosisConfidence:  5,
		InterventionPriority: PriorityMedium,
		DoctorID:             doctorID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.Apply(f, now); err != nil {
		return nil, err
	}
	return e, nil
}

// Apply validates and applies a partial update. Completed evaluations are read-only.
func (e *FinalEvaluation) Apply(f Fields, now time.Time) error {
	if e.CaseCompleted {
		return shared.NewDomainError("evaluation", "Upsert", shared.ErrAlreadyCompleted, "completed evaluation cannot be edited")
	}
	next := *e
	setIf(&next.TherapyDecision, f.TherapyDecision)
	setIf(&next.FinalDiagnosis, f.FinalDiagnosis)
	setIf(&next.DiagnosisConfidence, f.DiagnosisConfidence)
	setIf(&next.InterventionPriority, f.InterventionPriority)
	setIf(&next.HandwritingAnalysisSummary, f.HandwritingAnalysisSummary)
	setIf(&next.TaskPerformanceSummary, f.TaskPerformanceSummary)
	setIf(&next.ActivityProgressSummary, f.ActivityProgressSummary)
	setIf(&next.SupportingEvidence, f.SupportingEvidence)
	setIf(&next.ShortTermGoals, f.ShortTermGoals)
	setIf(&next.LongTermGoals, f.LongTermGoals)
	setIf(&next.RecommendedInterventions, f.RecommendedInterventions)
	setIf(&next.FollowUpTimeline, f.FollowUpTimeline)
	setIf(&next.MonitoringIndicators, f.MonitoringIndicators)
	setIf(&next.ClinicalNotes, f.ClinicalNotes)
	setIf(&next.ReferralsNeeded, f.ReferralsNeeded)
	setIf(&next.TherapyTerminationReason, f.TherapyTerminationReason)

	if !next.TherapyDecision.IsValid() {
		return shared.Errorf("evaluation", "Upsert", shared.ErrInvalidInput, "unknown therapy decision %q", next.TherapyDecision)
	}
	if !next.FinalDiagnosis.IsValid() {
		return shared.Errorf("evaluation", "Upsert", shared.ErrInvalidInput, "unknown diagnosis %q", next.FinalDiagnosis)
	}
	if !next.InterventionPriority.IsValid() {
		return shared.Errorf("evaluation", "Upsert", shared.ErrInvalidInput, "unknown intervention priority %q", next.InterventionPriority)
	}
	if err := shared.RequireRange("evaluation", "diagnosis confidence", next.DiagnosisConfidence, 1, 10); err != nil {
		return err
	}
	next.UpdatedAt = now
	*e = next
	return nil
}

// Complete closes the case. It can happen once per session.
func (e *FinalEvaluation) Complete(now time.Time) error {
	if e.CaseCompleted {
		return shared.ErrCaseCompleted
	}
	e.CaseCompleted = true
	e.CompletionDate = &now
	e.UpdatedAt = now
	return nil
}

// Terminate records the decision to end therapy and closes the case.
func (e *FinalEvaluation) Terminate(reason string, now time.Time) error {
	if e.CaseCompleted {
		return shared.ErrCaseCompleted
	}
	if err := shared.RequireText("evaluation", "termination reason", reason); err != nil {
		return err
	}
	e.TherapyDecision = DecisionTerminate
	e.TherapyTerminationReason = reason
	return e.Complete(now)
}

// ContinueNextSession opens the next therapy session on the live evaluation.
func (e *FinalEvaluation) ContinueNextSession(now time.Time) {
	e.TherapySessionNumber++
	e.TherapyDecision = DecisionContinue
	e.CaseCompleted = false
	e.CompletionDate = nil
	e.UpdatedAt = now
}

// ReducedView is what teachers and parents see of the evaluation.
type ReducedView struct {
	TherapySessionNumber int
	FinalDiagnosis       Diagnosis
	InterventionPriority Priority
	ShortTermGoals       string
	LongTermGoals        string
	FollowUpTimeline     string
	CaseCompleted        bool
}

// Reduced returns the caregiver view.
func (e *FinalEvaluation) Reduced() ReducedView {
	return ReducedView{
		TherapySessionNumber: e.TherapySessionNumber,
		FinalDiagnosis:       e.FinalDiagnosis,
		InterventionPriority: e.InterventionPriority,
		ShortTermGoals:       e.ShortTermGoals,
		LongTermGoals:        e.LongTermGoals,
		FollowUpTimeline:     e.FollowUpTimeline,
		CaseCompleted:        e.CaseCompleted,
	}
}

// CurrentSession returns the session number of the evaluation, or 1 when there is none.
func CurrentSession(e *FinalEvaluation) int {
	if e == nil {
		return 1
	}
	return e.TherapySessionNumber
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Repository persists the live evaluation of each case.
type Repository interface {
	// Get returns the evaluation. Returns ErrEvaluationNotFound when missing.
	Get(ctx context.Context, caseID string) (*FinalEvaluation, error)

	// Create stores the first evaluation of a case.
	Create(ctx context.Context, e *FinalEvaluation) error

	// Save overwrites the evaluation.
	Save(ctx context.Context, e *FinalEvaluation) error
}
