// Package ml is the client of the handwriting analysis service.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/pkg/circuitbreaker"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
	"github.com/dyslexia-hub/therapy-workflow/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the analysis client.
type ClientConfig struct {
	// BaseURL of the analysis service, e.g. http://localhost:8001.
	BaseURL string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxAttempts and InitialDelay tune retries of transient failures.
	MaxAttempts  int
	InitialDelay time.Duration

	// FailureThreshold consecutive failures open the breaker for BreakerTimeout.
	FailureThreshold int
	BreakerTimeout   time.Duration

	Logger *logger.Logger
}

// DefaultClientConfig returns the production defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          30 * time.Second,
		MaxAttempts:      3,
		InitialDelay:     500 * time.Millisecond,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

const analyzePath = "/analyze-handwriting/"

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements port.Analyzer over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
}

var _ port.Analyzer = (*Client)(nil)

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.With(logger.Component("ml_client"))
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.AnalyzerRetrier(cfg.MaxAttempts, cfg.InitialDelay),
		breaker: circuitbreaker.New("handwriting-analyzer",
			circuitbreaker.WithFailureThreshold(cfg.FailureThreshold),
			circuitbreaker.WithTimeout(cfg.BreakerTimeout),
			circuitbreaker.WithIsFailure(isServiceFailure),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		),
		logger: log,
	}
}

// analyzeResponse is the wire format of the analysis service.
type analyzeResponse struct {
	DyslexiaScore  float64        `json:"dyslexia_score"`
	Interpretation string         `json:"interpretation"`
	LetterCounts   map[string]int `json:"letter_counts"`
}

// StatusError is a non-2xx answer of the analysis service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.StatusCode, e.Body)
}

// AnalyzeImage uploads a PNG image and returns the model's verdict. Network
// errors and 5xx/429 answers are retried; the breaker fails fast while open.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte) (port.AnalysisResult, error) {
	var out port.AnalysisResult
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		res, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (port.AnalysisResult, error) {
			return c.analyzeOnce(ctx, image)
		})
		out = res
		return err
	})
	if err != nil {
		c.logger.Error("handwriting analysis failed", logger.Err(err))
		return port.AnalysisResult{}, err
	}
	return out, nil
}

func (c *Client) analyzeOnce(ctx context.Context, image []byte) (port.AnalysisResult, error) {
	body, contentType, err := multipartImage(image)
	if err != nil {
		return port.AnalysisResult{}, err
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + analyzePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return port.AnalysisResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return port.AnalysisResult{}, err
		}
		return port.AnalysisResult{}, retry.Retryable(fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return port.AnalysisResult{}, retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("analysis service responded",
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return port.AnalysisResult{}, retry.Retryable(serr)
		}
		return port.AnalysisResult{}, serr
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return port.AnalysisResult{}, fmt.Errorf("parse response: %w", err)
	}
	if parsed.DyslexiaScore < 0 || parsed.DyslexiaScore > 100 {
		return port.AnalysisResult{}, errors.New("analysis service returned a score outside [0, 100]")
	}
	if parsed.LetterCounts == nil {
		parsed.LetterCounts = map[string]int{}
	}
	return port.AnalysisResult{
		Score:        parsed.DyslexiaScore,
		Label:        parsed.Interpretation,
		LetterCounts: parsed.LetterCounts,
	}, nil
}

func multipartImage(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "handwriting.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// isServiceFailure excludes 4xx answers, which describe the request rather
// than the health of the service.
func isServiceFailure(err error) bool {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode >= 500 || serr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// State returns the breaker state.
func (c *Client) State() circuitbreaker.State {
	return c.breaker.State()
}
