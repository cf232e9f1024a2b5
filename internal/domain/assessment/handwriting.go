package assessment

import (
	"context"
	"time"
)

// HandwritingAnalysis is the stage 1 result of analyzing a handwriting sample.
type HandwritingAnalysis struct {
	ID           string
	CaseID       string
	ImageURL     string
	Score        float64
	Label        string
	LetterCounts map[string]int
	AnalyzedBy   string
	CreatedAt    time.Time
}

// HandwritingRepository persists handwriting analyses.
type HandwritingRepository interface {
	Create(ctx context.Context, a *HandwritingAnalysis) error
	// ListByCase returns analyses newest first.
	ListByCase(ctx context.Context, caseID string) ([]*HandwritingAnalysis, error)
}
