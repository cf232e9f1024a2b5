package postgres

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// progressRepo stores stage progress. Completed stages live in a SMALLINT[] column.
type progressRepo struct {
	q Querier
}

func (r *progressRepo) Create(ctx context.Context, p *workflow.Progress) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stage_progress (case_id, current_stage, completed_stages, updated_at)
		VALUES ($1, $2, $3, $4)`,
		p.CaseID, int16(p.CurrentStage), stagesToArray(p.CompletedStages), p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("workflow", "Create", shared.ErrDuplicateRecord, "progress already exists")
		}
		return storageErr("workflow", "Create", err)
	}
	return nil
}

func (r *progressRepo) Get(ctx context.Context, caseID string) (*workflow.Progress, error) {
	return r.get(ctx, "Get", `
		SELECT case_id, current_stage, completed_stages, updated_at
		FROM stage_progress WHERE case_id = $1`, caseID)
}

// GetForUpdate locks the progress row until the transaction ends. Outside a
// transaction the lock is released at once.
func (r *progressRepo) GetForUpdate(ctx context.Context, caseID string) (*workflow.Progress, error) {
	return r.get(ctx, "GetForUpdate", `
		SELECT case_id, current_stage, completed_stages, updated_at
		FROM stage_progress WHERE case_id = $1 FOR UPDATE`, caseID)
}

func (r *progressRepo) get(ctx context.Context, op, query, caseID string) (*workflow.Progress, error) {
	var p workflow.Progress
	var current int16
	var completed []int16
	err := r.q.QueryRow(ctx, query, caseID).Scan(&p.CaseID, &current, &completed, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, storageErr("workflow", op, err)
	}
	p.CurrentStage = workflow.Stage(current)
	nums := make([]int, len(completed))
	for i, s := range completed {
		nums[i] = int(s)
	}
	p.CompletedStages = workflow.StageSetOf(nums...)
	return &p, nil
}

func (r *progressRepo) Save(ctx context.Context, p *workflow.Progress) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE stage_progress SET current_stage = $2, completed_stages = $3, updated_at = $4
		WHERE case_id = $1`,
		p.CaseID, int16(p.CurrentStage), stagesToArray(p.CompletedStages), p.UpdatedAt,
	)
	if err != nil {
		return storageErr("workflow", "Save", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgressNotFound
	}
	return nil
}

func stagesToArray(ss workflow.StageSet) []int16 {
	out := make([]int16, len(ss))
	for i, s := range ss {
		out[i] = int16(s)
	}
	return out
}
