// Package http exposes the therapy workflow as a REST API.
// Every route under /api/v1 requires a bearer token that names the actor.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/command"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/interface/http/handlers"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxUploadBytes bounds handwriting image uploads.
	MaxUploadBytes int64

	// UploadRateLimit throttles handwriting uploads per actor.
	UploadRateLimit RateLimitConfig

	AllowedOrigins []string
	Version        string
	Debug          bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    90 * time.Second,
		MaxUploadBytes: 10 << 20,
		UploadRateLimit: RateLimitConfig{
			RequestsPerMinute: 10,
			BurstSize:         3,
		},
		AllowedOrigins: []string{"*"},
		Version:        "v1",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// FeatureGate answers per-user feature flag questions.
type FeatureGate interface {
	EnabledFor(name, userID string) bool
}

// Dependencies contains everything the routes call into.
type Dependencies struct {
	Cases           *command.CaseRegistry
	Stages          *command.StageTracker
	Tasks           *command.TaskScoringEngine
	Assessment      *command.AssessmentEngine
	Activities      *command.ActivityLifecycleManager
	Evaluation      *command.FinalEvaluationController
	Recommendations *command.RecommendationStore
	Archiver        *command.SessionArchiver
	Handwriting     *command.HandwritingIntake

	Tracking          *query.TrackingHandler
	EvaluationSummary *query.EvaluationSummaryHandler
	Comprehensive     *query.ComprehensiveHandler
	Reports           *query.TherapyReportsHandler

	Auth     *TokenAuthenticator
	Health   handlers.HealthChecker
	Features FeatureGate
	Logger   *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a server with all routes registered.
func NewServer(config Config, deps Dependencies) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.deps.Health == nil {
		s.deps.Health = handlers.NewCompositeHealthChecker(config.Version)
	}

	s.engine.Use(
		requestIDMiddleware(),
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware(config.AllowedOrigins),
	)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandler(s.deps.Health)
	s.engine.GET("/health", health.Health)
	s.engine.GET("/healthz", health.Health)
	s.engine.GET("/live", health.Live)
	s.engine.GET("/ready", health.Ready)

	api := s.engine.Group("/api/v1")
	api.Use(authMiddleware(s.deps.Auth))

	api.GET("/cases", s.handleListCases)
	api.POST("/cases", s.handleOpenCase)

	c := api.Group("/cases/:caseID")
	c.GET("", s.handleGetCase)
	c.POST("/links", s.handleLinkCaregiver)
	c.DELETE("/links/:userID", s.handleUnlinkCaregiver)

	c.GET("/stage", s.handleGetStage)
	c.POST("/stage/complete", s.handleCompleteStage)

	c.GET("/handwriting", s.handleListHandwriting)
	c.POST("/handwriting", rateLimitMiddleware(NewRateLimiter(s.config.UploadRateLimit)), s.handleAnalyzeHandwriting)

	c.GET("/tasks", s.handleListTasks)
	c.POST("/tasks", s.handleDefineTasks)
	c.PUT("/tasks/scores", s.handleScoreTasks)

	c.GET("/summary", s.handleGetSummary)
	c.PUT("/summary", s.handleUpsertSummary)

	c.GET("/activities", s.handleListActivities)
	c.POST("/activities", s.handleAssignActivities)
	c.PATCH("/activities/:assignmentID", s.handleUpdateAssignment)
	c.POST("/activities/:assignmentID/progress", s.handleRecordProgress)
	c.PATCH("/progress/:recordID", s.handleUpdateProgress)

	c.GET("/evaluation", s.handleGetEvaluation)
	c.PUT("/evaluation", s.handleUpsertEvaluation)
	c.POST("/evaluation/complete", s.handleCompleteCase)
	c.GET("/evaluation/summary", s.handleEvaluationSummary)
	c.GET("/comprehensive", s.handleComprehensive)

	c.GET("/recommendations", s.handleListRecommendations)
	c.GET("/recommendations/mine", s.handleGetMyRecommendation)
	c.PUT("/recommendations", s.handleUpsertRecommendation)

	c.POST("/terminate", s.handleTerminate)
	c.POST("/restart", s.handleRestart)
	c.GET("/reports", s.handleListReports)
	c.GET("/reports/:session", s.handleGetReport)
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
