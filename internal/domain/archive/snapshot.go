// Package archive builds and verifies the immutable report of a finished therapy session.
package archive

import (
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// SchemaVersion of the snapshot records written by this build.
const SchemaVersion = 1

// AssignmentSnapshotV1 is the archived form of an activity assignment.
type AssignmentSnapshotV1 struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Description      string    `json:"description"`
	Instructions     string    `json:"instructions"`
	Difficulty       string    `json:"difficulty"`
	Frequency        string    `json:"frequency"`
	DurationMinutes  int       `json:"durationMinutes"`
	TargetAudience   string    `json:"targetAudience"`
	ExpectedOutcomes string    `json:"expectedOutcomes"`
	SuccessCriteria  string    `json:"successCriteria"`
	IsActive         bool      `json:"isActive"`
	DoctorID         string    `json:"doctorId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ProgressSnapshotV1 is the archived form of a progress record.
type ProgressSnapshotV1 struct {
	ID                   string    `json:"id"`
	AssignmentID         string    `json:"assignmentId"`
	ActivityName         string    `json:"activityName"`
	SessionDate          time.Time `json:"sessionDate"`
	Performer            string    `json:"performer"`
	RecorderID           string    `json:"recorderId"`
	Status               string    `json:"status"`
	CompletionPercentage int       `json:"completionPercentage"`
	Score                *int      `json:"score"`
	DurationActual       *int      `json:"durationActual"`
	Notes                string    `json:"notes"`
	Challenges           string    `json:"challenges"`
	Improvements         string    `json:"improvements"`
	StudentEngagement    int       `json:"studentEngagement"`
	DifficultyLevel      int       `json:"difficultyLevel"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// EvaluationSnapshotV1 is the archived form of the final evaluation.
type EvaluationSnapshotV1 struct {
	ID                         string     `json:"id"`
	TherapySessionNumber       int        `json:"therapySessionNumber"`
	TherapyDecision            string     `json:"therapyDecision"`
	FinalDiagnosis             string     `json:"finalDiagnosis"`
	DiagnosisConfidence        int        `json:"diagnosisConfidence"`
	InterventionPriority       string     `json:"interventionPriority"`
	HandwritingAnalysisSummary string     `json:"handwritingAnalysisSummary"`
	TaskPerformanceSummary     string     `json:"taskPerformanceSummary"`
	ActivityProgressSummary    string     `json:"activityProgressSummary"`
	SupportingEvidence         string     `json:"supportingEvidence"`
	ShortTermGoals             string     `json:"shortTermGoals"`
	LongTermGoals              string     `json:"longTermGoals"`
	RecommendedInterventions   string     `json:"recommendedInterventions"`
	FollowUpTimeline           string     `json:"followUpTimeline"`
	MonitoringIndicators       string     `json:"monitoringIndicators"`
	ClinicalNotes              string     `json:"clinicalNotes"`
	ReferralsNeeded            string     `json:"referralsNeeded"`
	TherapyTerminationReason   string     `json:"therapyTerminationReason"`
	CaseCompleted              bool       `json:"caseCompleted"`
	CompletionDate             *time.Time `json:"completionDate"`
	DoctorID                   string     `json:"doctorId"`
	CreatedAt                  time.Time  `json:"createdAt"`
	UpdatedAt                  time.Time  `json:"updatedAt"`
}

// Payload is everything a report preserves from the live session.
type Payload struct {
	Assignments []AssignmentSnapshotV1 `json:"assignments"`
	Progress    []ProgressSnapshotV1   `json:"progress"`
	Evaluation  *EvaluationSnapshotV1  `json:"evaluation"`
}

// SnapshotAssignment copies an assignment into its archived form.
func SnapshotAssignment(a *activity.Assignment) AssignmentSnapshotV1 {
	return AssignmentSnapshotV1{
		ID:               a.ID,
		Name:             a.Name,
		Type:             string(a.Type),
		Description:      a.Description,
		Instructions:     a.Instructions,
		Difficulty:       string(a.Difficulty),
		Frequency:        string(a.Frequency),
		DurationMinutes:  a.DurationMinutes,
		TargetAudience:   string(a.TargetAudience),
		ExpectedOutcomes: a.ExpectedOutcomes,
		SuccessCriteria:  a.SuccessCriteria,
		IsActive:         a.IsActive,
		DoctorID:         a.DoctorID,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}
}

// Restore rebuilds the live assignment of a case.
func (s AssignmentSnapshotV1) Restore(caseID string) *activity.Assignment {
	return &activity.Assignment{
		ID:               s.ID,
		CaseID:           caseID,
		Name:             s.Name,
		Type:             activity.Type(s.Type),
		Description:      s.Description,
		Instructions:     s.Instructions,
		Difficulty:       activity.Difficulty(s.Difficulty),
		Frequency:        activity.Frequency(s.Frequency),
		DurationMinutes:  s.DurationMinutes,
		TargetAudience:   activity.Audience(s.TargetAudience),
		ExpectedOutcomes: s.ExpectedOutcomes,
		SuccessCriteria:  s.SuccessCriteria,
		IsActive:         s.IsActive,
		DoctorID:         s.DoctorID,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// SnapshotProgress copies a progress record into its archived form.
func SnapshotProgress(r *activity.ProgressRecord, activityName string) ProgressSnapshotV1 {
	return ProgressSnapshotV1{
		ID:                   r.ID,
		AssignmentID:         r.AssignmentID,
		ActivityName:         activityName,
		SessionDate:          r.SessionDate.UTC(),
		Performer:            string(r.Performer),
		RecorderID:           r.RecorderID,
		Status:               string(r.Status),
		CompletionPercentage: r.CompletionPercentage,
		Score:                copyInt(r.Score),
		DurationActual:       copyInt(r.DurationActual),
		Notes:                r.Notes,
		Challenges:           r.Challenges,
		Improvements:         r.Improvements,
		StudentEngagement:    r.StudentEngagement,
		DifficultyLevel:      r.DifficultyLevel,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

// Restore rebuilds the live progress record of a case.
func (s ProgressSnapshotV1) Restore(caseID string) *activity.ProgressRecord {
	return &activity.ProgressRecord{
		ID:                   s.ID,
		AssignmentID:         s.AssignmentID,
		CaseID:               caseID,
		SessionDate:          s.SessionDate,
		Performer:            shared.Role(s.Performer),
		RecorderID:           s.RecorderID,
		Status:               activity.Status(s.Status),
		CompletionPercentage: s.CompletionPercentage,
		Score:                copyInt(s.Score),
		DurationActual:       copyInt(s.DurationActual),
		Notes:                s.Notes,
		Challenges:           s.Challenges,
		Improvements:         s.Improvements,
		StudentEngagement:    s.StudentEngagement,
		DifficultyLevel:      s.DifficultyLevel,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// SnapshotEvaluation copies the evaluation into its archived form.
func SnapshotEvaluation(e *evaluation.FinalEvaluation) *EvaluationSnapshotV1 {
	if e == nil {
		return nil
	}
	var completed *time.Time
	if e.CompletionDate != nil {
		t := e.CompletionDate.UTC()
		completed = &t
	}
	return &EvaluationSnapshotV1{
		ID:                         e.ID,
		TherapySessionNumber:       e.TherapySessionNumber,
		TherapyDecision:            string(e.TherapyDecision),
		FinalDiagnosis:             string(e.FinalDiagnosis),
		DiagnosisConfidence:        e.DiagnosisConfidence,
		InterventionPriority:       string(e.InterventionPriority),
		HandwritingAnalysisSummary: e.HandwritingAnalysisSummary,
		TaskPerformanceSummary:     e.TaskPerformanceSummary,
		ActivityProgressSummary:    e.ActivityProgressSummary,
		SupportingEvidence:         e.SupportingEvidence,
		ShortTermGoals:             e.ShortTermGoals,
		LongTermGoals:              e.LongTermGoals,
		RecommendedInterventions:   e.RecommendedInterventions,
		FollowUpTimeline:           e.FollowUpTimeline,
		MonitoringIndicators:       e.MonitoringIndicators,
		ClinicalNotes:              e.ClinicalNotes,
		ReferralsNeeded:            e.ReferralsNeeded,
		TherapyTerminationReason:   e.TherapyTerminationReason,
		CaseCompleted:              e.CaseCompleted,
		CompletionDate:             completed,
		DoctorID:                   e.DoctorID,
		CreatedAt:                  e.CreatedAt.UTC(),
		UpdatedAt:                  e.UpdatedAt.UTC(),
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
