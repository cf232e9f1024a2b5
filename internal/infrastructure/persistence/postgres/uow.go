package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// UnitOfWork implements port.UnitOfWork. Repositories handed to WithinTx are
// bound to one pgx transaction; Repositories() runs against the pool.
type UnitOfWork struct {
	conn *Connection
}

// NewUnitOfWork creates a unit of work over the connection.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

var _ port.UnitOfWork = (*UnitOfWork)(nil)

// Repositories returns autocommit repositories.
func (u *UnitOfWork) Repositories() port.Repositories {
	return repositories(u.conn.Pool())
}

// WithinTx runs fn in a transaction. Unclassified failures are reported as internal errors.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	err := u.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, repositories(tx))
	})
	return shared.Internal("postgres", "WithinTx", err)
}

func repositories(q Querier) port.Repositories {
	return port.Repositories{
		Cases:           &caseRepo{q: q},
		Progress:        &progressRepo{q: q},
		Tasks:           &taskRepo{q: q},
		Summaries:       &summaryRepo{q: q},
		Handwriting:     &handwritingRepo{q: q},
		Activities:      &activityRepo{q: q},
		Evaluations:     &evaluationRepo{q: q},
		Recommendations: &recommendationRepo{q: q},
		Reports:         &reportRepo{q: q},
	}
}

// storageErr wraps a driver error as an internal domain error.
func storageErr(domain, op string, err error) error {
	return shared.WrapError(domain, op, shared.ErrInternal, "storage failure", err)
}
