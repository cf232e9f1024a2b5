package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/activity"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// activityRepo stores assignments and progress records. The unique key
// (assignment_id, session_date, performer) reports duplicate sessions.
type activityRepo struct {
	q Querier
}

// ─────────────────────────────────────────────────────────────────────────────
// Assignments
// ─────────────────────────────────────────────────────────────────────────────

const assignmentColumns = `id, case_id, name, type, description, instructions, difficulty, frequency,
	duration_minutes, target_audience, expected_outcomes, success_criteria, is_active, doctor_id,
	created_at, updated_at`

func (r *activityRepo) CreateAssignments(ctx context.Context, as []*activity.Assignment) error {
	for _, a := range as {
		_, err := r.q.Exec(ctx, `
			INSERT INTO activity_assignments (`+assignmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			a.ID, a.CaseID, a.Name, string(a.Type), a.Description, a.Instructions, string(a.Difficulty),
			string(a.Frequency), a.DurationMinutes, string(a.TargetAudience), a.ExpectedOutcomes,
			a.SuccessCriteria, a.IsActive, a.DoctorID, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.NewDomainError("activity", "CreateAssignments", shared.ErrDuplicateRecord, "assignment already exists")
			}
			return storageErr("activity", "CreateAssignments", err)
		}
	}
	return nil
}

func (r *activityRepo) GetAssignment(ctx context.Context, id string) (*activity.Assignment, error) {
	a, err := scanAssignment(r.q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM activity_assignments WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAssignmentNotFound
		}
		return nil, storageErr("activity", "GetAssignment", err)
	}
	return a, nil
}

func (r *activityRepo) SaveAssignment(ctx context.Context, a *activity.Assignment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE activity_assignments SET
			name = $2, type = $3, description = $4, instructions = $5, difficulty = $6, frequency = $7,
			duration_minutes = $8, target_audience = $9, expected_outcomes = $10, success_criteria = $11,
			is_active = $12, updated_at = $13
		WHERE id = $1`,
		a.ID, a.Name, string(a.Type), a.Description, a.Instructions, string(a.Difficulty), string(a.Frequency),
		a.DurationMinutes, string(a.TargetAudience), a.ExpectedOutcomes, a.SuccessCriteria,
		a.IsActive, a.UpdatedAt,
	)
	if err != nil {
		return storageErr("activity", "SaveAssignment", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAssignmentNotFound
	}
	return nil
}

func (r *activityRepo) ListAssignments(ctx context.Context, caseID string) ([]*activity.Assignment, error) {
	rows, err := r.q.Query(ctx, `SELECT `+assignmentColumns+` FROM activity_assignments WHERE case_id = $1 ORDER BY seq`, caseID)
	if err != nil {
		return nil, storageErr("activity", "ListAssignments", err)
	}
	defer rows.Close()

	out := []*activity.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, storageErr("activity", "ListAssignments", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*activity.Assignment, error) {
	var a activity.Assignment
	var typ, difficulty, frequency, audience string
	err := row.Scan(&a.ID, &a.CaseID, &a.Name, &typ, &a.Description, &a.Instructions, &difficulty, &frequency,
		&a.DurationMinutes, &audience, &a.ExpectedOutcomes, &a.SuccessCriteria, &a.IsActive, &a.DoctorID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = activity.Type(typ)
	a.Difficulty = activity.Difficulty(difficulty)
	a.Frequency = activity.Frequency(frequency)
	a.TargetAudience = activity.Audience(audience)
	return &a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress records
// ─────────────────────────────────────────────────────────────────────────────

const recordColumns = `id, assignment_id, case_id, session_date, performer, recorder_id, status,
	completion_percentage, score, duration_actual, notes, challenges, improvements,
	student_engagement, difficulty_level, created_at, updated_at`

func (r *activityRepo) CreateRecord(ctx context.Context, rec *activity.ProgressRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO activity_progress (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, rec.AssignmentID, rec.CaseID, rec.SessionDate, string(rec.Performer), rec.RecorderID,
		string(rec.Status), rec.CompletionPercentage, rec.Score, rec.DurationActual, rec.Notes,
		rec.Challenges, rec.Improvements, rec.StudentEngagement, rec.DifficultyLevel,
		rec.CreatedAt, rec.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return shared.ErrDuplicateSession
	case IsForeignKeyViolation(err):
		return shared.ErrAssignmentNotFound
	default:
		return storageErr("activity", "CreateRecord", err)
	}
}

func (r *activityRepo) GetRecord(ctx context.Context, id string) (*activity.ProgressRecord, error) {
	rec, err := scanRecord(r.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM activity_progress WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRecordNotFound
		}
		return nil, storageErr("activity", "GetRecord", err)
	}
	return rec, nil
}

func (r *activityRepo) SaveRecord(ctx context.Context, rec *activity.ProgressRecord) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE activity_progress SET
			session_date = $2, status = $3, completion_percentage = $4, score = $5, duration_actual = $6,
			notes = $7, challenges = $8, improvements = $9, student_engagement = $10,
			difficulty_level = $11, updated_at = $12
		WHERE id = $1`,
		rec.ID, rec.SessionDate, string(rec.Status), rec.CompletionPercentage, rec.Score, rec.DurationActual,
		rec.Notes, rec.Challenges, rec.Improvements, rec.StudentEngagement,
		rec.DifficultyLevel, rec.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateSession
		}
		return storageErr("activity", "SaveRecord", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrRecordNotFound
	}
	return nil
}

func (r *activityRepo) ListRecords(ctx context.Context, caseID string) ([]*activity.ProgressRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+recordColumns+` FROM activity_progress
		WHERE case_id = $1 ORDER BY session_date, seq`, caseID)
	if err != nil {
		return nil, storageErr("activity", "ListRecords", err)
	}
	defer rows.Close()

	out := []*activity.ProgressRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("activity", "ListRecords", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *activityRepo) DeleteByCase(ctx context.Context, caseID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM activity_progress WHERE case_id = $1`, caseID); err != nil {
		return storageErr("activity", "DeleteByCase", err)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM activity_assignments WHERE case_id = $1`, caseID); err != nil {
		return storageErr("activity", "DeleteByCase", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*activity.ProgressRecord, error) {
	var rec activity.ProgressRecord
	var performer, status string
	err := row.Scan(&rec.ID, &rec.AssignmentID, &rec.CaseID, &rec.SessionDate, &performer, &rec.RecorderID, &status,
		&rec.CompletionPercentage, &rec.Score, &rec.DurationActual, &rec.Notes, &rec.Challenges, &rec.Improvements,
		&rec.StudentEngagement, &rec.DifficultyLevel, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Performer = shared.Role(performer)
	rec.Status = activity.Status(status)
	rec.SessionDate = rec.SessionDate.UTC()
	return &rec, nil
}
