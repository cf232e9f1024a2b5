package http

import (
	"fmt"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/command"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
)

// dateLayout is the wire format of calendar dates.
const dateLayout = "2006-01-02"

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD form", field)
	}
	return t, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ── cases ──────────────────────────────────────────────────────────────────

type openCaseRequest struct {
	Name     string  `json:"name" binding:"required"`
	Birthday *string `json:"birthday"`
	School   string  `json:"school"`
	Grade    string  `json:"grade"`
	Gender   string  `json:"gender"`
}

func (r openCaseRequest) command() (command.OpenCaseCommand, error) {
	birthday, err := parseOptionalDate("birthday", r.Birthday)
	if err != nil {
		return command.OpenCaseCommand{}, err
	}
	return command.OpenCaseCommand{
		Name:     r.Name,
		Birthday: birthday,
		School:   r.School,
		Grade:    r.Grade,
		Gender:   caseload.Gender(r.Gender),
	}, nil
}

type linkRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

// ── assessment ─────────────────────────────────────────────────────────────

type defineTasksRequest struct {
	Tasks []struct {
		Name     string `json:"name" binding:"required"`
		MaxScore int    `json:"max_score"`
	} `json:"tasks" binding:"required,min=1,dive"`
}

func (r defineTasksRequest) inputs() []assessment.TaskInput {
	out := make([]assessment.TaskInput, len(r.Tasks))
	for i, t := range r.Tasks {
		out[i] = assessment.TaskInput{Name: t.Name, MaxScore: t.MaxScore}
	}
	return out
}

type scoreTasksRequest struct {
	Scores []struct {
		TaskID string `json:"task_id" binding:"required"`
		Score  int    `json:"score"`
	} `json:"scores" binding:"required,min=1,dive"`
}

func (r scoreTasksRequest) entries() []assessment.ScoreEntry {
	out := make([]assessment.ScoreEntry, len(r.Scores))
	for i, s := range r.Scores {
		out[i] = assessment.ScoreEntry{TaskID: s.TaskID, Score: s.Score}
	}
	return out
}

type summaryRequest struct {
	Cutoff          string `json:"cutoff" binding:"required"`
	Notes           string `json:"notes"`
	Recommendations string `json:"recommendations"`
}

// ── activities ─────────────────────────────────────────────────────────────

type assignmentBody struct {
	Name             string `json:"name" binding:"required"`
	Type             string `json:"activity_type" binding:"required"`
	Description      string `json:"description"`
	Instructions     string `json:"instructions"`
	Difficulty       string `json:"difficulty_level"`
	Frequency        string `json:"frequency"`
	DurationMinutes  int    `json:"duration_minutes"`
	TargetAudience   string `json:"target_audience" binding:"required"`
	ExpectedOutcomes string `json:"expected_outcomes"`
	SuccessCriteria  string `json:"success_criteria"`
}

type assignActivitiesRequest struct {
	Activities []assignmentBody `json:"activities" binding:"required,min=1,dive"`
}

func (r assignActivitiesRequest) inputs() []activity.AssignmentInput {
	out := make([]activity.AssignmentInput, len(r.Activities))
	for i, a := range r.Activities {
		out[i] = activity.AssignmentInput{
			Name:             a.Name,
			Type:             activity.Type(a.Type),
			Description:      a.Description,
			Instructions:     a.Instructions,
			Difficulty:       activity.Difficulty(a.Difficulty),
			Frequency:        activity.Frequency(a.Frequency),
			DurationMinutes:  a.DurationMinutes,
			TargetAudience:   activity.Audience(a.TargetAudience),
			ExpectedOutcomes: a.ExpectedOutcomes,
			SuccessCriteria:  a.SuccessCriteria,
		}
	}
	return out
}

type updateAssignmentRequest struct {
	Name             *string `json:"name"`
	Type             *string `json:"activity_type"`
	Description      *string `json:"description"`
	Instructions     *string `json:"instructions"`
	Difficulty       *string `json:"difficulty_level"`
	Frequency        *string `json:"frequency"`
	DurationMinutes  *int    `json:"duration_minutes"`
	TargetAudience   *string `json:"target_audience"`
	ExpectedOutcomes *string `json:"expected_outcomes"`
	SuccessCriteria  *string `json:"success_criteria"`
	IsActive         *bool   `json:"is_active"`
}

func (r updateAssignmentRequest) patch() activity.AssignmentPatch {
	return activity.AssignmentPatch{
		Name:             r.Name,
		Type:             enumPtr[activity.Type](r.Type),
		Description:      r.Description,
		Instructions:     r.Instructions,
		Difficulty:       enumPtr[activity.Difficulty](r.Difficulty),
		Frequency:        enumPtr[activity.Frequency](r.Frequency),
		DurationMinutes:  r.DurationMinutes,
		TargetAudience:   enumPtr[activity.Audience](r.TargetAudience),
		ExpectedOutcomes: r.ExpectedOutcomes,
		SuccessCriteria:  r.SuccessCriteria,
		IsActive:         r.IsActive,
	}
}

type recordProgressRequest struct {
	SessionDate          string `json:"session_date" binding:"required"`
	Status               string `json:"status"`
	CompletionPercentage int    `json:"completion_percentage"`
	Score                *int   `json:"score"`
	DurationActual       *int   `json:"duration_actual"`
	Notes                string `json:"notes"`
	Challenges           string `json:"challenges"`
	Improvements         string `json:"improvements"`
	StudentEngagement    int    `json:"student_engagement"`
	DifficultyLevel      int    `json:"difficulty_level"`
}

func (r recordProgressRequest) input() (activity.ProgressInput, error) {
	day, err := parseDate("session_date", r.SessionDate)
	if err != nil {
		return activity.ProgressInput{}, err
	}
	return activity.ProgressInput{
		SessionDate:          day,
		Status:               activity.Status(r.Status),
		CompletionPercentage: r.CompletionPercentage,
		Score:                r.Score,
		DurationActual:       r.DurationActual,
		Notes:                r.Notes,
		Challenges:           r.Challenges,
		Improvements:         r.Improvements,
		StudentEngagement:    r.StudentEngagement,
		DifficultyLevel:      r.DifficultyLevel,
	}, nil
}

type updateProgressRequest struct {
	SessionDate          *string `json:"session_date"`
	Status               *string `json:"status"`
	CompletionPercentage *int    `json:"completion_percentage"`
	Score                *int    `json:"score"`
	DurationActual       *int    `json:"duration_actual"`
	Notes                *string `json:"notes"`
	Challenges           *string `json:"challenges"`
	Improvements         *string `json:"improvements"`
	StudentEngagement    *int    `json:"student_engagement"`
	DifficultyLevel      *int    `json:"difficulty_level"`
}

func (r updateProgressRequest) patch() (activity.ProgressPatch, error) {
	day, err := parseOptionalDate("session_date", r.SessionDate)
	if err != nil {
		return activity.ProgressPatch{}, err
	}
	return activity.ProgressPatch{
		SessionDate:          day,
		Status:               enumPtr[activity.Status](r.Status),
		CompletionPercentage: r.CompletionPercentage,
		Score:                r.Score,
		DurationActual:       r.DurationActual,
		Notes:                r.Notes,
		Challenges:           r.Challenges,
		Improvements:         r.Improvements,
		StudentEngagement:    r.StudentEngagement,
		DifficultyLevel:      r.DifficultyLevel,
	}, nil
}

// ── evaluation ─────────────────────────────────────────────────────────────

type evaluationRequest struct {
	TherapyDecision            *string `json:"therapy_decision"`
	FinalDiagnosis             *string `json:"final_diagnosis"`
	DiagnosisConfidence        *int    `json:"diagnosis_confidence"`
	InterventionPriority       *string `json:"intervention_priority"`
	HandwritingAnalysisSummary *string `json:"handwriting_analysis_summary"`
	TaskPerformanceSummary     *string `json:"task_performance_summary"`
	ActivityProgressSummary    *string `json:"activity_progress_summary"`
	SupportingEvidence         *string `json:"supporting_evidence"`
	ShortTermGoals             *string `json:"short_term_goals"`
	LongTermGoals              *string `json:"long_term_goals"`
	RecommendedInterventions   *string `json:"recommended_interventions"`
	FollowUpTimeline           *string `json:"follow_up_timeline"`
	MonitoringIndicators       *string `json:"monitoring_indicators"`
	ClinicalNotes              *string `json:"clinical_notes"`
	ReferralsNeeded            *string `json:"referrals_needed"`
	TherapyTerminationReason   *string `json:"therapy_termination_reason"`
}

func (r evaluationRequest) fields() evaluation.Fields {
	return evaluation.Fields{
		TherapyDecision:            enumPtr[evaluation.Decision](r.TherapyDecision),
		FinalDiagnosis:             enumPtr[evaluation.Diagnosis](r.FinalDiagnosis),
		DiagnosisConfidence:        r.DiagnosisConfidence,
		InterventionPriority:       enumPtr[evaluation.Priority](r.InterventionPriority),
		HandwritingAnalysisSummary: r.HandwritingAnalysisSummary,
		TaskPerformanceSummary:     r.TaskPerformanceSummary,
		ActivityProgressSummary:    r.ActivityProgressSummary,
		SupportingEvidence:         r.SupportingEvidence,
		ShortTermGoals:             r.ShortTermGoals,
		LongTermGoals:              r.LongTermGoals,
		RecommendedInterventions:   r.RecommendedInterventions,
		FollowUpTimeline:           r.FollowUpTimeline,
		MonitoringIndicators:       r.MonitoringIndicators,
		ClinicalNotes:              r.ClinicalNotes,
		ReferralsNeeded:            r.ReferralsNeeded,
		TherapyTerminationReason:   r.TherapyTerminationReason,
	}
}

type recommendationRequest struct {
	Observations    string `json:"observations"`
	Recommendations string `json:"recommendations"`
	Concerns        string `json:"concerns"`
	PositiveChanges string `json:"positive_changes"`
	SupportNeeded   string `json:"support_needed"`
}

func (r recommendationRequest) fields() evaluation.RecommendationFields {
	return evaluation.RecommendationFields(r)
}

func enumPtr[E ~string](s *string) *E {
	if s == nil {
		return nil
	}
	v := E(*s)
	return &v
}
