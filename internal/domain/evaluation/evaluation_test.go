package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestNew_Defaults(t *testing.T) {
	e, err := New("e-1", "case-1", "doc-1", Fields{}, now)
	require.NoError(t, err)

	assert.Equal(t, 1, e.TherapySessionNumber)
	assert.Equal(t, DecisionPending, e.TherapyDecision)
	assert.Equal(t, DiagnosisRequiresFurtherAssessment, e.FinalDiagnosis)
	assert.Equal(t, 5, e.DiagnosisConfidence)
	assert.Equal(t, PriorityMedium, e.InterventionPriority)
	assert.False(t, e.CaseCompleted)
	assert.Nil(t, e.CompletionDate)
}

func TestApply_PartialAndValidated(t *testing.T) {
	e, err := New("e-1", "case-1", "doc-1", Fields{ClinicalNotes: ptr("first")}, now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	require.NoError(t, e.Apply(Fields{FinalDiagnosis: ptr(DiagnosisMild)}, later))
	assert.Equal(t, DiagnosisMild, e.FinalDiagnosis)
	assert.Equal(t, "first", e.ClinicalNotes, "absent fields are untouched")
	assert.Equal(t, later, e.UpdatedAt)

	before := *e
	assert.ErrorIs(t, e.Apply(Fields{DiagnosisConfidence: ptr(11)}, later), shared.ErrOutOfRange)
	assert.ErrorIs(t, e.Apply(Fields{TherapyDecision: ptr(Decision("maybe"))}, later), shared.ErrInvalidInput)
	assert.ErrorIs(t, e.Apply(Fields{InterventionPriority: ptr(Priority("whenever"))}, later), shared.ErrInvalidInput)
	assert.Equal(t, before, *e)
}

func TestComplete_OncePerSession(t *testing.T) {
	e, err := New("e-1", "case-1", "doc-1", Fields{}, now)
	require.NoError(t, err)

	require.NoError(t, e.Complete(now))
	assert.True(t, e.CaseCompleted)
	require.NotNil(t, e.CompletionDate)

	assert.ErrorIs(t, e.Complete(now), shared.ErrAlreadyCompleted)
	assert.ErrorIs(t, e.Apply(Fields{ClinicalNotes: ptr("x")}, now), shared.ErrAlreadyCompleted)
	assert.ErrorIs(t, e.Terminate("done", now), shared.ErrAlreadyCompleted)

	e.ContinueNextSession(now)
	assert.Equal(t, 2, e.TherapySessionNumber)
	assert.Equal(t, DecisionContinue, e.TherapyDecision)
	assert.False(t, e.CaseCompleted)
	assert.Nil(t, e.CompletionDate)
}

func TestTerminate(t *testing.T) {
	e, err := New("e-1", "case-1", "doc-1", Fields{}, now)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Terminate("  ", now), shared.ErrInvalidInput)
	assert.False(t, e.CaseCompleted)

	require.NoError(t, e.Terminate("goals met", now))
	assert.Equal(t, DecisionTerminate, e.TherapyDecision)
	assert.Equal(t, "goals met", e.TherapyTerminationReason)
	assert.True(t, e.CaseCompleted)
}

func TestReducedAndCurrentSession(t *testing.T) {
	assert.Equal(t, 1, CurrentSession(nil))

	e, err := New("e-1", "case-1", "doc-1", Fields{ShortTermGoals: ptr("read 10 words"), ClinicalNotes: ptr("private")}, now)
	require.NoError(t, err)
	e.ContinueNextSession(now)

	view := e.Reduced()
	assert.Equal(t, 2, view.TherapySessionNumber)
	assert.Equal(t, "read 10 words", view.ShortTermGoals)
	assert.Equal(t, 2, CurrentSession(e))
}

func TestNewRecommendation(t *testing.T) {
	parent := shared.Actor{UserID: "p-1", Role: shared.RoleParent}
	r, err := NewRecommendation("r-1", "case-1", parent, 2, RecommendationFields{Observations: "reads more"}, now)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleParent, r.StakeholderType)
	assert.Equal(t, "p-1", r.StakeholderID)
	assert.Equal(t, 2, r.TherapySessionNumber)

	_, err = NewRecommendation("r-2", "case-1", shared.Actor{UserID: "d", Role: shared.RoleDoctor}, 1, RecommendationFields{}, now)
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)

	_, err = NewRecommendation("r-3", "case-1", parent, 0, RecommendationFields{}, now)
	assert.ErrorIs(t, err, shared.ErrOutOfRange)
}
