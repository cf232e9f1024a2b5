package port

import "context"

// AnalysisResult is what the handwriting model reports for one image.
type AnalysisResult struct {
	Score        float64
	Label        string
	LetterCounts map[string]int
}

// Analyzer classifies a handwriting image.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (AnalysisResult, error)
}

// FileStore stores an uploaded file and returns its URL.
type FileStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ImageNormalizer converts an uploaded image into the canonical PNG form.
type ImageNormalizer interface {
	Normalize(data []byte) ([]byte, error)
}
