package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/evaluation"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINAL EVALUATIONS
// ══════════════════════════════════════════════════════════════════════════════

// narrativeDoc is the JSONB form of the free-text sections.
type narrativeDoc struct {
	HandwritingAnalysisSummary string `json:"handwriting_analysis_summary,omitempty"`
	TaskPerformanceSummary     string `json:"task_performance_summary,omitempty"`
	ActivityProgressSummary    string `json:"activity_progress_summary,omitempty"`
	SupportingEvidence         string `json:"supporting_evidence,omitempty"`
	ShortTermGoals             string `json:"short_term_goals,omitempty"`
	LongTermGoals              string `json:"long_term_goals,omitempty"`
	RecommendedInterventions   string `json:"recommended_interventions,omitempty"`
	FollowUpTimeline           string `json:"follow_up_timeline,omitempty"`
	MonitoringIndicators       string `json:"monitoring_indicators,omitempty"`
	ClinicalNotes              string `json:"clinical_notes,omitempty"`
	ReferralsNeeded            string `json:"referrals_needed,omitempty"`
	TherapyTerminationReason   string `json:"therapy_termination_reason,omitempty"`
}

type evaluationRepo struct {
	q Querier
}

const evaluationColumns = `id, case_id, therapy_session_number, therapy_decision, final_diagnosis,
	diagnosis_confidence, intervention_priority, narrative, case_completed, completion_date, doctor_id,
	created_at, updated_at`

func (r *evaluationRepo) Get(ctx context.Context, caseID string) (*evaluation.FinalEvaluation, error) {
	var e evaluation.FinalEvaluation
	var decision, diagnosis, priority string
	var narrative []byte
	err := r.q.QueryRow(ctx, `SELECT `+evaluationColumns+` FROM final_evaluations WHERE case_id = $1`, caseID).
		Scan(&e.ID, &e.CaseID, &e.TherapySessionNumber, &decision, &diagnosis, &e.DiagnosisConfidence,
			&priority, &narrative, &e.CaseCompleted, &e.CompletionDate, &e.DoctorID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEvaluationNotFound
		}
		return nil, storageErr("evaluation", "Get", err)
	}

	var doc narrativeDoc
	if err := json.Unmarshal(narrative, &doc); err != nil {
		return nil, storageErr("evaluation", "Get", err)
	}
	e.Narrative = evaluation.Narrative(doc)
	e.TherapyDecision = evaluation.Decision(decision)
	e.FinalDiagnosis = evaluation.Diagnosis(diagnosis)
	e.InterventionPriority = evaluation.Priority(priority)
	return &e, nil
}

func (r *evaluationRepo) Create(ctx context.Context, e *evaluation.FinalEvaluation) error {
	narrative, err := json.Marshal(narrativeDoc(e.Narrative))
	if err != nil {
		return storageErr("evaluation", "Create", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO final_evaluations (`+evaluationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.CaseID, e.TherapySessionNumber, string(e.TherapyDecision), string(e.FinalDiagnosis),
		e.DiagnosisConfidence, string(e.InterventionPriority), narrative, e.CaseCompleted, e.CompletionDate,
		e.DoctorID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("evaluation", "Create", shared.ErrDuplicateRecord, "evaluation already exists")
		}
		return storageErr("evaluation", "Create", err)
	}
	return nil
}

func (r *evaluationRepo) Save(ctx context.Context, e *evaluation.FinalEvaluation) error {
	narrative, err := json.Marshal(narrativeDoc(e.Narrative))
	if err != nil {
		return storageErr("evaluation", "Save", err)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE final_evaluations SET
			therapy_session_number = $2, therapy_decision = $3, final_diagnosis = $4,
			diagnosis_confidence = $5, intervention_priority = $6, narrative = $7,
			case_completed = $8, completion_date = $9, doctor_id = $10, updated_at = $11
		WHERE case_id = $1`,
		e.CaseID, e.TherapySessionNumber, string(e.TherapyDecision), string(e.FinalDiagnosis),
		e.DiagnosisConfidence, string(e.InterventionPriority), narrative,
		e.CaseCompleted, e.CompletionDate, e.DoctorID, e.UpdatedAt,
	)
	if err != nil {
		return storageErr("evaluation", "Save", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEvaluationNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STAKEHOLDER RECOMMENDATIONS
// ══════════════════════════════════════════════════════════════════════════════

type recommendationRepo struct {
	q Querier
}

const recommendationColumns = `id, case_id, stakeholder_id, stakeholder_type, therapy_session_number,
	observations, recommendations, concerns, positive_changes, support_needed, created_at, updated_at`

func (r *recommendationRepo) Get(ctx context.Context, caseID, stakeholderID string, session int) (*evaluation.Recommendation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+recommendationColumns+` FROM stakeholder_recommendations
		WHERE case_id = $1 AND stakeholder_id = $2 AND therapy_session_number = $3`,
		caseID, stakeholderID, session)
	if err != nil {
		return nil, storageErr("recommendation", "Get", err)
	}
	out, err := scanRecommendations(rows)
	if err != nil {
		return nil, storageErr("recommendation", "Get", err)
	}
	if len(out) == 0 {
		return nil, shared.ErrRecommendationNotFound
	}
	return out[0], nil
}

// Upsert keeps id and created_at of an existing row.
func (r *recommendationRepo) Upsert(ctx context.Context, rec *evaluation.Recommendation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stakeholder_recommendations (`+recommendationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (case_id, stakeholder_id, therapy_session_number) DO UPDATE SET
			observations = EXCLUDED.observations,
			recommendations = EXCLUDED.recommendations,
			concerns = EXCLUDED.concerns,
			positive_changes = EXCLUDED.positive_changes,
			support_needed = EXCLUDED.support_needed,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.CaseID, rec.StakeholderID, string(rec.StakeholderType), rec.TherapySessionNumber,
		rec.Observations, rec.Recommendations, rec.Concerns, rec.PositiveChanges, rec.SupportNeeded,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storageErr("recommendation", "Upsert", err)
	}
	return nil
}

func (r *recommendationRepo) ListForSession(ctx context.Context, caseID string, session int) ([]*evaluation.Recommendation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+recommendationColumns+` FROM stakeholder_recommendations
		WHERE case_id = $1 AND therapy_session_number = $2
		ORDER BY stakeholder_type, stakeholder_id`, caseID, session)
	if err != nil {
		return nil, storageErr("recommendation", "ListForSession", err)
	}
	out, err := scanRecommendations(rows)
	if err != nil {
		return nil, storageErr("recommendation", "ListForSession", err)
	}
	return out, nil
}

func scanRecommendations(rows pgx.Rows) ([]*evaluation.Recommendation, error) {
	defer rows.Close()
	out := []*evaluation.Recommendation{}
	for rows.Next() {
		var rec evaluation.Recommendation
		var role string
		if err := rows.Scan(&rec.ID, &rec.CaseID, &rec.StakeholderID, &role, &rec.TherapySessionNumber,
			&rec.Observations, &rec.Recommendations, &rec.Concerns, &rec.PositiveChanges, &rec.SupportNeeded,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.StakeholderType = shared.Role(role)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
