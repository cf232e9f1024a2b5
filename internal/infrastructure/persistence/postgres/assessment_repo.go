package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASKS
// ══════════════════════════════════════════════════════════════════════════════

type taskRepo struct {
	q Querier
}

func (r *taskRepo) CreateBatch(ctx context.Context, tasks []*assessment.Task) error {
	for _, t := range tasks {
		_, err := r.q.Exec(ctx, `
			INSERT INTO assessment_tasks (id, case_id, name, max_score, score_obtained, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.CaseID, t.Name, t.MaxScore, t.ScoreObtained, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.NewDomainError("assessment", "CreateTasks", shared.ErrDuplicateRecord, "task already exists")
			}
			return storageErr("assessment", "CreateTasks", err)
		}
	}
	return nil
}

func (r *taskRepo) ListByCase(ctx context.Context, caseID string) ([]*assessment.Task, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, case_id, name, max_score, score_obtained, created_by, created_at, updated_at
		FROM assessment_tasks WHERE case_id = $1 ORDER BY seq`, caseID)
	if err != nil {
		return nil, storageErr("assessment", "ListTasks", err)
	}
	defer rows.Close()

	out := []*assessment.Task{}
	for rows.Next() {
		var t assessment.Task
		if err := rows.Scan(&t.ID, &t.CaseID, &t.Name, &t.MaxScore, &t.ScoreObtained, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, storageErr("assessment", "ListTasks", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *taskRepo) SaveScores(ctx context.Context, tasks []*assessment.Task) error {
	for _, t := range tasks {
		tag, err := r.q.Exec(ctx, `
			UPDATE assessment_tasks SET score_obtained = $2, updated_at = $3 WHERE id = $1`,
			t.ID, t.ScoreObtained, t.UpdatedAt,
		)
		if err != nil {
			return storageErr("assessment", "SaveScores", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrTaskNotFound
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARIES
// ══════════════════════════════════════════════════════════════════════════════

type summaryRepo struct {
	q Querier
}

// Upsert keeps created_at of an existing row.
func (r *summaryRepo) Upsert(ctx context.Context, s *assessment.Summary) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO assessment_summaries (
			case_id, cutoff_percentage, total_score, total_max_score, percentage_score, risk_level,
			dyslexia_indication, notes, recommendations, assessed_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (case_id) DO UPDATE SET
			cutoff_percentage = EXCLUDED.cutoff_percentage,
			total_score = EXCLUDED.total_score,
			total_max_score = EXCLUDED.total_max_score,
			percentage_score = EXCLUDED.percentage_score,
			risk_level = EXCLUDED.risk_level,
			dyslexia_indication = EXCLUDED.dyslexia_indication,
			notes = EXCLUDED.notes,
			recommendations = EXCLUDED.recommendations,
			assessed_by = EXCLUDED.assessed_by,
			updated_at = EXCLUDED.updated_at`,
		s.CaseID, s.CutoffPercentage, s.TotalScore, s.TotalMaxScore, s.PercentageScore, string(s.RiskLevel),
		s.DyslexiaIndication, s.Notes, s.Recommendations, s.AssessedBy, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return storageErr("assessment", "UpsertSummary", err)
	}
	return nil
}

func (r *summaryRepo) Get(ctx context.Context, caseID string) (*assessment.Summary, error) {
	var s assessment.Summary
	var risk string
	err := r.q.QueryRow(ctx, `
		SELECT case_id, cutoff_percentage, total_score, total_max_score, percentage_score, risk_level,
		       dyslexia_indication, notes, recommendations, assessed_by, created_at, updated_at
		FROM assessment_summaries WHERE case_id = $1`, caseID,
	).Scan(&s.CaseID, &s.CutoffPercentage, &s.TotalScore, &s.TotalMaxScore, &s.PercentageScore, &risk,
		&s.DyslexiaIndication, &s.Notes, &s.Recommendations, &s.AssessedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSummaryNotFound
		}
		return nil, storageErr("assessment", "GetSummary", err)
	}
	s.RiskLevel = assessment.RiskLevel(risk)
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDWRITING
// ══════════════════════════════════════════════════════════════════════════════

type handwritingRepo struct {
	q Querier
}

func (r *handwritingRepo) Create(ctx context.Context, a *assessment.HandwritingAnalysis) error {
	counts, err := json.Marshal(a.LetterCounts)
	if err != nil {
		return storageErr("assessment", "CreateHandwriting", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO handwriting_analyses (id, case_id, image_url, score, label, letter_counts, analyzed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CaseID, a.ImageURL, a.Score, a.Label, counts, a.AnalyzedBy, a.CreatedAt,
	)
	if err != nil {
		return storageErr("assessment", "CreateHandwriting", err)
	}
	return nil
}

func (r *handwritingRepo) ListByCase(ctx context.Context, caseID string) ([]*assessment.HandwritingAnalysis, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, case_id, image_url, score, label, letter_counts, analyzed_by, created_at
		FROM handwriting_analyses WHERE case_id = $1 ORDER BY created_at DESC, id`, caseID)
	if err != nil {
		return nil, storageErr("assessment", "ListHandwriting", err)
	}
	defer rows.Close()

	out := []*assessment.HandwritingAnalysis{}
	for rows.Next() {
		a, err := scanHandwriting(rows)
		if err != nil {
			return nil, storageErr("assessment", "ListHandwriting", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanHandwriting(row pgx.Row) (*assessment.HandwritingAnalysis, error) {
	var a assessment.HandwritingAnalysis
	var counts []byte
	if err := row.Scan(&a.ID, &a.CaseID, &a.ImageURL, &a.Score, &a.Label, &counts, &a.AnalyzedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &a.LetterCounts); err != nil {
			return nil, err
		}
	}
	return &a, nil
}
