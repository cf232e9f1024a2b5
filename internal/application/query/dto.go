// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

type CaseDTO struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Birthday  *time.Time `json:"birthday,omitempty"`
	School    string     `json:"school"`
	Grade     string     `json:"grade"`
	Gender    string     `json:"gender"`
	TeacherID string     `json:"teacher_id"`
	Links     []LinkDTO  `json:"links,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type LinkDTO struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func NewCaseDTO(c *caseload.Case, links []caseload.Link) CaseDTO {
	dto := CaseDTO{
		ID:        c.ID,
		Name:      c.Name,
		Birthday:  c.Birthday,
		School:    c.School,
		Grade:     c.Grade,
		Gender:    string(c.Gender),
		TeacherID: c.TeacherID,
		CreatedAt: c.CreatedAt,
	}
	for _, l := range links {
		dto.Links = append(dto.Links, LinkDTO{UserID: l.UserID, Role: l.Role.String()})
	}
	return dto
}

type StageDTO struct {
	CurrentStage    int   `json:"current_stage"`
	CompletedStages []int `json:"completed_stages"`
}

func NewStageDTO(p *workflow.Progress) StageDTO {
	return StageDTO{CurrentStage: p.CurrentStage.Int(), CompletedStages: p.CompletedStages.Ints()}
}

type HandwritingDTO struct {
	ID           string         `json:"id"`
	ImageURL     string         `json:"image_url"`
	Score        float64        `json:"dyslexia_score"`
	Label        string         `json:"interpretation"`
	LetterCounts map[string]int `json:"letter_counts"`
	AnalyzedBy   string         `json:"analyzed_by"`
	CreatedAt    time.Time      `json:"created_at"`
}

func NewHandwritingDTO(a *assessment.HandwritingAnalysis) HandwritingDTO {
	return HandwritingDTO{
		ID:           a.ID,
		ImageURL:     a.ImageURL,
		Score:        a.Score,
		Label:        a.Label,
		LetterCounts: a.LetterCounts,
		AnalyzedBy:   a.AnalyzedBy,
		CreatedAt:    a.CreatedAt,
	}
}

type TaskDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MaxScore      int    `json:"max_score"`
	ScoreObtained *int   `json:"score_obtained"`
	CreatedBy     string `json:"created_by"`
}

func NewTaskDTO(t *assessment.Task) TaskDTO {
	return TaskDTO{ID: t.ID, Name: t.Name, MaxScore: t.MaxScore, ScoreObtained: t.ScoreObtained, CreatedBy: t.CreatedBy}
}

func NewTaskDTOs(ts []*assessment.Task) []TaskDTO {
	out := make([]TaskDTO, len(ts))
	for i, t := range ts {
		out[i] = NewTaskDTO(t)
	}
	return out
}

type SummaryDTO struct {
	CutoffPercentage   float64   `json:"cutoff_percentage"`
	TotalScore         int       `json:"total_score"`
	TotalMaxScore      int       `json:"total_max_score"`
	PercentageScore    float64   `json:"percentage_score"`
	RiskLevel          string    `json:"risk_level"`
	DyslexiaIndication bool      `json:"dyslexia_indication"`
	Notes              string    `json:"notes"`
	Recommendations    string    `json:"recommendations"`
	AssessedBy         string    `json:"assessed_by"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewSummaryDTO(s *assessment.Summary) *SummaryDTO {
	if s == nil {
		return nil
	}
	return &SummaryDTO{
		CutoffPercentage:   s.CutoffPercentage,
		TotalScore:         s.TotalScore,
		TotalMaxScore:      s.TotalMaxScore,
		PercentageScore:    s.PercentageScore,
		RiskLevel:          string(s.RiskLevel),
		DyslexiaIndication: s.DyslexiaIndication,
		Notes:              s.Notes,
		Recommendations:    s.Recommendations,
		AssessedBy:         s.AssessedBy,
		UpdatedAt:          s.UpdatedAt,
	}
}

type AssignmentDTO struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"activity_type"`
	Description      string    `json:"description"`
	Instructions     string    `json:"instructions"`
	Difficulty       string    `json:"difficulty_level"`
	Frequency        string    `json:"frequency"`
	DurationMinutes  int       `json:"duration_minutes"`
	TargetAudience   string    `json:"target_audience"`
	ExpectedOutcomes string    `json:"expected_outcomes"`
	SuccessCriteria  string    `json:"success_criteria"`
	IsActive         bool      `json:"is_active"`
	DoctorID         string    `json:"doctor_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewAssignmentDTO(a *activity.Assignment) AssignmentDTO {
	return AssignmentDTO{
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
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type ProgressDTO struct {
	ID                   string    `json:"id"`
	AssignmentID         string    `json:"assignment_id"`
	SessionDate          string    `json:"session_date"`
	Performer            string    `json:"performed_by"`
	RecorderID           string    `json:"recorded_by"`
	Status               string    `json:"status"`
	CompletionPercentage int       `json:"completion_percentage"`
	Score                *int      `json:"score"`
	DurationActual       *int      `json:"duration_actual"`
	Notes                string    `json:"notes"`
	Challenges           string    `json:"challenges_faced"`
	Improvements         string    `json:"improvements_observed"`
	StudentEngagement    int       `json:"student_engagement"`
	DifficultyLevel      int       `json:"difficulty_level"`
	CreatedAt            time.Time `json:"created_at"`
}

func NewProgressDTO(r *activity.ProgressRecord) ProgressDTO {
	return ProgressDTO{
		ID:                   r.ID,
		AssignmentID:         r.AssignmentID,
		SessionDate:          r.SessionDate.Format(time.DateOnly),
		Performer:            r.Performer.String(),
		RecorderID:           r.RecorderID,
		Status:               string(r.Status),
		CompletionPercentage: r.CompletionPercentage,
		Score:                r.Score,
		DurationActual:       r.DurationActual,
		Notes:                r.Notes,
		Challenges:           r.Challenges,
		Improvements:         r.Improvements,
		StudentEngagement:    r.StudentEngagement,
		DifficultyLevel:      r.DifficultyLevel,
		CreatedAt:            r.CreatedAt,
	}
}

type TrackedAssignmentDTO struct {
	AssignmentDTO
	ProgressHistory   []ProgressDTO `json:"progress_history"`
	TotalSessions     int           `json:"total_sessions"`
	CompletedSessions int           `json:"completed_sessions"`
}

func NewTrackedDTOs(tracked []activity.Tracked) []TrackedAssignmentDTO {
	out := make([]TrackedAssignmentDTO, len(tracked))
	for i, t := range tracked {
		history := make([]ProgressDTO, len(t.History))
		for j, r := range t.History {
			history[j] = NewProgressDTO(r)
		}
		out[i] = TrackedAssignmentDTO{
			AssignmentDTO:     NewAssignmentDTO(t.Assignment),
			ProgressHistory:   history,
			TotalSessions:     t.TotalSessions,
			CompletedSessions: t.CompletedSessions,
		}
	}
	return out
}

// EvaluationDTO reuses the archived field set, which already lists every field.
type EvaluationDTO = archive.EvaluationSnapshotV1

func NewEvaluationDTO(e *evaluation.FinalEvaluation) *EvaluationDTO {
	return archive.SnapshotEvaluation(e)
}

type ReducedEvaluationDTO struct {
	TherapySessionNumber int    `json:"therapy_session_number"`
	FinalDiagnosis       string `json:"final_diagnosis"`
	InterventionPriority string `json:"intervention_priority"`
	ShortTermGoals       string `json:"short_term_goals"`
	LongTermGoals        string `json:"long_term_goals"`
	FollowUpTimeline     string `json:"follow_up_timeline"`
	CaseCompleted        bool   `json:"case_completed"`
}

func NewReducedEvaluationDTO(v evaluation.ReducedView) *ReducedEvaluationDTO {
	return &ReducedEvaluationDTO{
		TherapySessionNumber: v.TherapySessionNumber,
		FinalDiagnosis:       string(v.FinalDiagnosis),
		InterventionPriority: string(v.InterventionPriority),
		ShortTermGoals:       v.ShortTermGoals,
		LongTermGoals:        v.LongTermGoals,
		FollowUpTimeline:     v.FollowUpTimeline,
		CaseCompleted:        v.CaseCompleted,
	}
}

type RecommendationDTO struct {
	StakeholderID        string    `json:"stakeholder_id"`
	StakeholderType      string    `json:"stakeholder_type"`
	TherapySessionNumber int       `json:"therapy_session_number"`
	Observations         string    `json:"observations"`
	Recommendations      string    `json:"recommendations"`
	Concerns             string    `json:"concerns"`
	PositiveChanges      string    `json:"positive_changes"`
	SupportNeeded        string    `json:"support_needed"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func NewRecommendationDTO(r *evaluation.Recommendation) *RecommendationDTO {
	if r == nil {
		return nil
	}
	return &RecommendationDTO{
		StakeholderID:        r.StakeholderID,
		StakeholderType:      r.StakeholderType.String(),
		TherapySessionNumber: r.TherapySessionNumber,
		Observations:         r.Observations,
		Recommendations:      r.Recommendations,
		Concerns:             r.Concerns,
		PositiveChanges:      r.PositiveChanges,
		SupportNeeded:        r.SupportNeeded,
		UpdatedAt:            r.UpdatedAt,
	}
}

// authorize loads the roster and checks the actor is attached with one of roles.
func authorize(ctx context.Context, repos port.Repositories, caseID string, actor shared.Actor, roles ...shared.Role) (caseload.Roster, error) {
	roster, err := caseload.LoadRoster(ctx, repos.Cases, caseID)
	if err != nil {
		return caseload.Roster{}, err
	}
	if err := roster.Authorize(actor, roles...); err != nil {
		return caseload.Roster{}, err
	}
	return roster, nil
}
