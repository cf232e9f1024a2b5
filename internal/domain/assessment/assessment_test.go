package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func scoredTask(t *testing.T, name string, max, score int) *Task {
	t.Helper()
	task, err := NewTask(name, "case-1", TaskInput{Name: name, MaxScore: max}, "doc-1", now)
	require.NoError(t, err)
	require.NoError(t, task.Score(score, now))
	return task
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		percentage float64
		cutoff     float64
		risk       RiskLevel
		indication bool
	}{
		{"at cutoff", 70, 70, RiskLow, false},
		{"above cutoff", 95, 70, RiskLow, false},
		{"inside medium band", 65, 70, RiskMedium, true},
		{"medium band lower edge", 60, 70, RiskMedium, true},
		{"below medium band", 55, 70, RiskHigh, true},
		{"zero cutoff", 0, 0, RiskLow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk, indication := Classify(tt.percentage, tt.cutoff)
			assert.Equal(t, tt.risk, risk)
			assert.Equal(t, tt.indication, indication)
		})
	}
}

func TestParseCutoff(t *testing.T) {
	v, err := ParseCutoff(" 72.5 ")
	require.NoError(t, err)
	assert.Equal(t, 72.5, v)

	for _, raw := range []string{"", "abc", "-1", "100.01", "NaN", "Inf"} {
		_, err := ParseCutoff(raw)
		assert.ErrorIs(t, err, shared.ErrOutOfRange, raw)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 70.0, Percentage(14, 20))
}

func TestSummarize(t *testing.T) {
	tasks := []*Task{scoredTask(t, "reading", 10, 8), scoredTask(t, "spelling", 10, 6)}

	s, err := Summarize("case-1", tasks, SummaryInput{Cutoff: "70", Notes: " ok "}, "doc-1", now)
	require.NoError(t, err)
	assert.Equal(t, 14, s.TotalScore)
	assert.Equal(t, 20, s.TotalMaxScore)
	assert.Equal(t, 70.0, s.PercentageScore)
	assert.Equal(t, RiskLow, s.RiskLevel)
	assert.False(t, s.DyslexiaIndication)
	assert.Equal(t, "ok", s.Notes)
}

func TestSummarize_Preconditions(t *testing.T) {
	_, err := Summarize("case-1", nil, SummaryInput{Cutoff: "70"}, "doc-1", now)
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)

	unscored, err := NewTask("t", "case-1", TaskInput{Name: "t", MaxScore: 5}, "doc-1", now)
	require.NoError(t, err)
	_, err = Summarize("case-1", []*Task{unscored}, SummaryInput{Cutoff: "70"}, "doc-1", now)
	assert.ErrorIs(t, err, shared.ErrPreconditionNotMet)

	_, err = Summarize("case-1", []*Task{scoredTask(t, "t", 5, 5)}, SummaryInput{Cutoff: "abc"}, "doc-1", now)
	assert.ErrorIs(t, err, shared.ErrOutOfRange)
}

func TestTask_Validation(t *testing.T) {
	_, err := NewTask("t", "case-1", TaskInput{Name: "  ", MaxScore: 5}, "doc-1", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewTask("t", "case-1", TaskInput{Name: "t", MaxScore: 0}, "doc-1", now)
	assert.ErrorIs(t, err, shared.ErrOutOfRange)

	task, err := NewTask("t", "case-1", TaskInput{Name: "t", MaxScore: 5}, "doc-1", now)
	require.NoError(t, err)
	assert.ErrorIs(t, task.Score(6, now), shared.ErrOutOfRange)
	assert.ErrorIs(t, task.Score(-1, now), shared.ErrOutOfRange)
	assert.False(t, task.IsScored())

	require.NoError(t, task.Score(5, now))
	assert.True(t, task.IsScored())
	assert.True(t, AllScored([]*Task{task}))
}
