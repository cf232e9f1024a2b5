package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/archive"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// reportRepo stores sealed session reports. The payload is JSONB; key order
// may change in storage, so integrity is checked on the decoded structs.
type reportRepo struct {
	q Querier
}

const reportColumns = `id, case_id, session_number, outcome, session_start_date, session_end_date,
	schema_version, payload, checksum, archived_by, created_at`

func (r *reportRepo) Create(ctx context.Context, rep *archive.Report) error {
	payload, err := json.Marshal(rep.Payload)
	if err != nil {
		return storageErr("archive", "Create", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO therapy_session_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rep.ID, rep.CaseID, rep.SessionNumber, string(rep.Outcome), rep.SessionStartDate, rep.SessionEndDate,
		rep.SchemaVersion, payload, rep.Checksum, rep.ArchivedBy, rep.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && constraintName(err) != "therapy_session_reports_pkey" {
			return shared.ErrReportExists
		}
		return storageErr("archive", "Create", err)
	}
	return nil
}

func (r *reportRepo) LatestSessionNumber(ctx context.Context, caseID string) (int, error) {
	var latest int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(session_number), 0) FROM therapy_session_reports WHERE case_id = $1`, caseID,
	).Scan(&latest)
	if err != nil {
		return 0, storageErr("archive", "LatestSessionNumber", err)
	}
	return latest, nil
}

func (r *reportRepo) List(ctx context.Context, caseID string) ([]*archive.Report, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+reportColumns+` FROM therapy_session_reports
		WHERE case_id = $1 ORDER BY session_number`, caseID)
	if err != nil {
		return nil, storageErr("archive", "List", err)
	}
	defer rows.Close()

	out := []*archive.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, storageErr("archive", "List", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *reportRepo) Get(ctx context.Context, caseID string, session int) (*archive.Report, error) {
	rep, err := scanReport(r.q.QueryRow(ctx, `
		SELECT `+reportColumns+` FROM therapy_session_reports
		WHERE case_id = $1 AND session_number = $2`, caseID, session))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReportNotFound
		}
		return nil, storageErr("archive", "Get", err)
	}
	return rep, nil
}

func (r *reportRepo) ListAll(ctx context.Context, after archive.Cursor, limit int) ([]*archive.Report, error) {
	if after.CaseID == "" {
		after.CaseID = uuid.Nil.String()
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+reportColumns+` FROM therapy_session_reports
		WHERE (case_id, session_number) > ($1, $2)
		ORDER BY case_id, session_number
		LIMIT $3`, after.CaseID, after.SessionNumber, limit)
	if err != nil {
		return nil, storageErr("archive", "ListAll", err)
	}
	defer rows.Close()

	out := []*archive.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, storageErr("archive", "ListAll", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func scanReport(row pgx.Row) (*archive.Report, error) {
	var rep archive.Report
	var outcome string
	var payload []byte
	err := row.Scan(&rep.ID, &rep.CaseID, &rep.SessionNumber, &outcome, &rep.SessionStartDate, &rep.SessionEndDate,
		&rep.SchemaVersion, &payload, &rep.Checksum, &rep.ArchivedBy, &rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rep.Payload); err != nil {
		return nil, err
	}
	rep.Outcome = archive.Outcome(outcome)
	rep.SessionStartDate = rep.SessionStartDate.UTC()
	rep.SessionEndDate = rep.SessionEndDate.UTC()
	rep.CreatedAt = rep.CreatedAt.UTC()
	return &rep, nil
}
