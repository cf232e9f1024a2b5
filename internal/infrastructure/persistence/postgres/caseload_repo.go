package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/caseload"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CASE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type caseRepo struct {
	q Querier
}

const caseColumns = `id, name, birthday, school, grade, gender, teacher_id, created_at, updated_at`

func (r *caseRepo) Create(ctx context.Context, c *caseload.Case) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.Birthday, c.School, c.Grade, string(c.Gender), c.TeacherID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("caseload", "Create", shared.ErrDuplicateRecord, "case already exists")
		}
		return storageErr("caseload", "Create", err)
	}
	return nil
}

func (r *caseRepo) Get(ctx context.Context, id string) (*caseload.Case, error) {
	c, err := scanCase(r.q.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCaseNotFound
		}
		return nil, storageErr("caseload", "Get", err)
	}
	return c, nil
}

func (r *caseRepo) ListForMember(ctx context.Context, actor shared.Actor) ([]*caseload.Case, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+caseColumns+` FROM cases c
		WHERE ($2 = 'teacher' AND c.teacher_id = $1)
		   OR EXISTS (SELECT 1 FROM case_links l WHERE l.case_id = c.id AND l.user_id = $1 AND l.role = $2)
		ORDER BY c.created_at, c.id`,
		actor.UserID, string(actor.Role),
	)
	if err != nil {
		return nil, storageErr("caseload", "ListForMember", err)
	}
	defer rows.Close()

	var out []*caseload.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, storageErr("caseload", "ListForMember", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *caseRepo) Links(ctx context.Context, caseID string) ([]caseload.Link, error) {
	rows, err := r.q.Query(ctx, `
		SELECT case_id, user_id, role, created_at FROM case_links
		WHERE case_id = $1 ORDER BY created_at, user_id`, caseID)
	if err != nil {
		return nil, storageErr("caseload", "Links", err)
	}
	defer rows.Close()

	var out []caseload.Link
	for rows.Next() {
		var l caseload.Link
		var role string
		if err := rows.Scan(&l.CaseID, &l.UserID, &role, &l.CreatedAt); err != nil {
			return nil, storageErr("caseload", "Links", err)
		}
		l.Role = shared.Role(role)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *caseRepo) AddLink(ctx context.Context, l caseload.Link) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO case_links (case_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`,
		l.CaseID, l.UserID, string(l.Role), l.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return shared.ErrLinkExists
	case IsForeignKeyViolation(err):
		return shared.ErrCaseNotFound
	default:
		return storageErr("caseload", "AddLink", err)
	}
}

func (r *caseRepo) RemoveLink(ctx context.Context, caseID, userID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM case_links WHERE case_id = $1 AND user_id = $2`, caseID, userID)
	if err != nil {
		return storageErr("caseload", "RemoveLink", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLinkNotFound
	}
	return nil
}

func scanCase(row pgx.Row) (*caseload.Case, error) {
	var c caseload.Case
	var gender string
	if err := row.Scan(&c.ID, &c.Name, &c.Birthday, &c.School, &c.Grade, &gender, &c.TeacherID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Gender = caseload.Gender(gender)
	return &c, nil
}

