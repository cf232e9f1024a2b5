package assessment

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// RiskLevel classifies the assessment percentage against the cutoff.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// mediumBand is how far below the cutoff a percentage still counts as medium risk.
const mediumBand = 10.0

// Summary is the stage 4 assessment of a case. At most one exists per case.
type Summary struct {
	CaseID             string
	CutoffPercentage   float64
	TotalScore         int
	TotalMaxScore      int
	PercentageScore    float64
	RiskLevel          RiskLevel
	DyslexiaIndication bool
	Notes              string
	Recommendations    string
	AssessedBy         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ParseCutoff parses the doctor-supplied cutoff. It must be a finite number in [0, 100].
func ParseCutoff(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return 0, shared.WrapError("assessment", "ParseCutoff", shared.ErrOutOfRange,
			"cutoff must be a number between 0 and 100", shared.ErrInvalidCutoff)
	}
	return v, nil
}

// Percentage returns total*100/max, or 0 when max is 0.
func Percentage(total, max int) float64 {
	if max == 0 {
		return 0
	}
	return float64(total) * 100 / float64(max)
}

// Classify maps a percentage to a risk level and dyslexia indication.
func Classify(percentage, cutoff float64) (RiskLevel, bool) {
	indication := percentage < cutoff
	switch {
	case percentage >= cutoff:
		return RiskLow, indication
	case percentage >= cutoff-mediumBand:
		return RiskMedium, indication
	default:
		return RiskHigh, indication
	}
}

// SummaryInput holds what the doctor submits at stage 4.
type SummaryInput struct {
	Cutoff          string
	Notes           string
	Recommendations string
}

// Summarize computes a summary from scored tasks.
func Summarize(caseID string, tasks []*Task, in SummaryInput, doctorID string, now time.Time) (*Summary, error) {
	if len(tasks) == 0 {
		return nil, shared.ErrNoTasks
	}
	if !AllScored(tasks) {
		return nil, shared.ErrTasksNotScored
	}
	cutoff, err := ParseCutoff(in.Cutoff)
	if err != nil {
		return nil, err
	}

	var total, max int
	for _, t := range tasks {
		total += *t.ScoreObtained
		max += t.MaxScore
	}
	pct := Percentage(total, max)
	risk, indication := Classify(pct, cutoff)

	return &Summary{
		CaseID:             caseID,
		CutoffPercentage:   cutoff,
		TotalScore:         total,
		TotalMaxScore:      max,
		PercentageScore:    pct,
		RiskLevel:          risk,
		DyslexiaIndication: indication,
		Notes:              strings.TrimSpace(in.Notes),
		Recommendations:    strings.TrimSpace(in.Recommendations),
		AssessedBy:         doctorID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// SummaryRepository persists assessment summaries.
type SummaryRepository interface {
	// Upsert replaces the summary of the case. CreatedAt of an existing row is kept.
	Upsert(ctx context.Context, s *Summary) error

	// Get returns the summary. Returns ErrSummaryNotFound when missing.
	Get(ctx context.Context, caseID string) (*Summary, error)
}
