package command

import (
	"context"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/assessment"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/workflow"
)

// TaskScoringEngine handles stage 2 task definition and stage 3 scoring.
type TaskScoringEngine struct {
	deps Deps
}

func NewTaskScoringEngine(deps Deps) *TaskScoringEngine {
	return &TaskScoringEngine{deps: deps.withDefaults()}
}

// DefineTasks creates unscored tasks. Either every task is created or none.
func (e *TaskScoringEngine) DefineTasks(ctx context.Context, caseID string, actor shared.Actor, inputs []assessment.TaskInput) (tasks []*assessment.Task, err error) {
	const op = "DefineTasks"
	started := e.deps.now()
	ctx, span := e.deps.span(ctx, op, caseID, actor)
	defer func() { e.deps.end(span, op, caseID, actor, started, err) }()

	if len(inputs) == 0 {
		return nil, shared.NewDomainError("assessment", op, shared.ErrInvalidInput, "at least one task is required")
	}

	err = e.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, actor, roles(shared.RoleDoctor), workflow.StageTaskDefinition); err != nil {
			return err
		}
		now := e.deps.now()
		tasks = make([]*assessment.Task, 0, len(inputs))
		for _, in := range inputs {
			t, err := assessment.NewTask(e.deps.NewID(), caseID, in, actor.UserID, now)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return repos.Tasks.CreateBatch(ctx, tasks)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ScoreTasks records the teacher's scores. One invalid entry rejects the batch.
func (e *TaskScoringEngine) ScoreTasks(ctx context.Context, caseID string, actor shared.Actor, scores []assessment.ScoreEntry) (tasks []*assessment.Task, err error) {
	const op = "ScoreTasks"
	started := e.deps.now()
	ctx, span := e.deps.span(ctx, op, caseID, actor)
	defer func() { e.deps.end(span, op, caseID, actor, started, err) }()

	if len(scores) == 0 {
		return nil, shared.NewDomainError("assessment", op, shared.ErrInvalidInput, "at least one score is required")
	}

	err = e.deps.UoW.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		s, err := loadScope(ctx, repos, caseID, true)
		if err != nil {
			return err
		}
		if err := s.roster.AuthorizeOwner(actor); err != nil {
			return err
		}
		if err := s.progress.RequireStage(op, workflow.StageTaskScoring); err != nil {
			return err
		}

		all, err := repos.Tasks.ListByCase(ctx, caseID)
		if err != nil {
			return err
		}
		byID := make(map[string]*assessment.Task, len(all))
		for _, t := range all {
			byID[t.ID] = t
		}

		// Validate the whole batch before touching any task.
		for _, sc := range scores {
			t, ok := byID[sc.TaskID]
			if !ok {
				return shared.Errorf("assessment", op, shared.ErrNotFound, "task %s not found in case", sc.TaskID)
			}
			if err := t.CheckScore(sc.Score); err != nil {
				return err
			}
		}

		now := e.deps.now()
		changed := make([]*assessment.Task, 0, len(scores))
		for _, sc := range scores {
			t := byID[sc.TaskID]
			if err := t.Score(sc.Score, now); err != nil {
				return err
			}
			changed = append(changed, t)
		}
		if err := repos.Tasks.SaveScores(ctx, changed); err != nil {
			return err
		}
		tasks = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// AllScored reports whether every task of the case has a score.
func (e *TaskScoringEngine) AllScored(ctx context.Context, caseID string) (bool, error) {
	tasks, err := e.deps.UoW.Repositories().Tasks.ListByCase(ctx, caseID)
	if err != nil {
		return false, err
	}
	return assessment.AllScored(tasks), nil
}

// ListTasks returns the tasks of a case to any attached actor.
func (e *TaskScoringEngine) ListTasks(ctx context.Context, caseID string, actor shared.Actor) ([]*assessment.Task, error) {
	repos := e.deps.UoW.Repositories()
	s, err := loadScope(ctx, repos, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.authorize("ListTasks", actor, nil); err != nil {
		return nil, err
	}
	return repos.Tasks.ListByCase(ctx, caseID)
}
