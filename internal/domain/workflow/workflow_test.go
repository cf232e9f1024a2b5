package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

var stageRoles = []shared.Role{
	StageHandwriting:        shared.RoleTeacher,
	StageTaskDefinition:     shared.RoleDoctor,
	StageTaskScoring:        shared.RoleTeacher,
	StageAssessment:         shared.RoleDoctor,
	StageActivityAssignment: shared.RoleDoctor,
	StageActivityTracking:   shared.RoleParent,
	StageFinalEvaluation:    shared.RoleDoctor,
}

func TestProgress_CompleteWalksAllStages(t *testing.T) {
	p := NewProgress("case-1", now)
	table := DefaultRoleTable()

	for _, s := range AllStages {
		require.Equal(t, s, p.CurrentStage)
		require.NoError(t, p.Complete(stageRoles[s], table, now))
	}

	assert.Equal(t, LastStage, p.CurrentStage, "the last stage does not advance")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, p.CompletedStages.Ints())

	err := p.Complete(shared.RoleDoctor, table, now)
	assert.ErrorIs(t, err, shared.ErrStageAlreadyCompleted)
}

func TestProgress_CompleteRejectsWrongRole(t *testing.T) {
	p := NewProgress("case-1", now)

	err := p.Complete(shared.RoleDoctor, DefaultRoleTable(), now.Add(time.Hour))
	require.ErrorIs(t, err, shared.ErrRoleNotPermitted)
	assert.Equal(t, StageHandwriting, p.CurrentStage)
	assert.Empty(t, p.CompletedStages)
	assert.Equal(t, now, p.UpdatedAt, "nothing changes on error")
}

func TestProgress_ResetForNewSession(t *testing.T) {
	p := NewProgress("case-1", now)
	table := DefaultRoleTable()
	for _, s := range AllStages {
		require.NoError(t, p.Complete(stageRoles[s], table, now))
	}

	require.NoError(t, p.ResetForNewSession(RestartStage, RestartPreservedSet, now))
	assert.Equal(t, StageActivityAssignment, p.CurrentStage)
	assert.Equal(t, []int{1, 2, 3, 4}, p.CompletedStages.Ints())

	err := p.ResetForNewSession(StageTaskScoring, StageSetOf(1, 2, 3), now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput, "preserved stages must come before the current one")

	err = p.ResetForNewSession(Stage(9), nil, now)
	assert.ErrorIs(t, err, shared.ErrOutOfRange)
}

func TestProgress_RequireStage(t *testing.T) {
	p := NewProgress("case-1", now)
	assert.NoError(t, p.RequireStage("Upload", StageHandwriting))

	err := p.RequireStage("Score", StageTaskScoring, StageAssessment)
	require.ErrorIs(t, err, shared.ErrPreconditionNotMet)
	assert.Contains(t, err.Error(), "[3 4]")
}

func TestRoleTable(t *testing.T) {
	table := DefaultRoleTable()
	require.NoError(t, table.Validate())

	assert.True(t, table.Permits(StageActivityTracking, shared.RoleParent))
	assert.True(t, table.Permits(StageActivityTracking, shared.RoleTeacher))
	assert.False(t, table.Permits(StageActivityTracking, shared.RoleDoctor))
	assert.False(t, table.Permits(StageHandwriting, shared.RoleParent))

	entries := map[Stage][]shared.Role(DefaultRoleTable())
	delete(entries, StageAssessment)
	_, err := NewRoleTable(entries)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	entries = map[Stage][]shared.Role(DefaultRoleTable())
	entries[Stage(8)] = []shared.Role{shared.RoleDoctor}
	_, err = NewRoleTable(entries)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestStageSetOf(t *testing.T) {
	ss := StageSetOf(3, 1, 3, 2)
	assert.Equal(t, []int{1, 2, 3}, ss.Ints())
	assert.True(t, ss.Contains(StageTaskDefinition))
	assert.False(t, ss.Contains(StageAssessment))
}
