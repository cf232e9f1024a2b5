package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyslexia-hub/therapy-workflow/config"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/command"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/eventhandler"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/external/ml"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/external/objectstore"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/messaging"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/observability"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/memory"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/postgres"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/redis"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/scheduler"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/dyslexia-hub/therapy-workflow/internal/interface/http"
	"github.com/dyslexia-hub/therapy-workflow/internal/interface/http/handlers"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

// closer is released in reverse order on shutdown.
type closer struct {
	name string
	fn   func(context.Context) error
}

func serve(ctx context.Context, migrate bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting therapy workflow service",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				log.Warn("shutdown step failed", logger.Component(closers[i].name), logger.Err(err))
			}
		}
	}()

	shutdownTracing, err := observability.Init(ctx, log, observability.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Stdout:      cfg.Observability.TracingStdout,
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	closers = append(closers, closer{"tracing", shutdownTracing})

	roles, err := config.LoadRoleTable(cfg.Workflow.PolicyFile)
	if err != nil {
		return fmt.Errorf("load stage policy: %w", err)
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	var uow port.UnitOfWork
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		uow = memory.New()
	} else {
		conn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, closer{"postgres", func(context.Context) error { conn.Close(); return nil }})
		health.AddCheck("database", handlers.NewPingCheck(conn))

		if migrate {
			n, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", n))
		}
		uow = postgres.NewUnitOfWork(conn)
	}

	var reportCache *redis.ReportCache
	if !cfg.Redis.Disabled && cfg.Features.Enabled(config.FeatureReportCache) {
		cache, err := redis.NewCache(redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, report cache disabled", logger.Err(err))
		} else {
			closers = append(closers, closer{"redis", func(context.Context) error { return cache.Close() }})
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			reportCache = redis.NewReportCache(cache, cfg.Redis.ReportTTL)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENTS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.AsyncMode = cfg.Features.Enabled(config.FeatureAsyncEvents)
	busCfg.Logger = log.With(logger.Component("eventbus"))
	bus := messaging.NewInMemoryEventBus(busCfg)
	closers = append(closers, closer{"eventbus", func(context.Context) error { return bus.Close() }})

	if err := subscribe(bus, cfg, reportCache, log); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EXTERNAL SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	analyzer := ml.NewClient(ml.ClientConfig{
		BaseURL:          cfg.Analyzer.BaseURL,
		Timeout:          cfg.Analyzer.Timeout,
		MaxAttempts:      cfg.Analyzer.MaxAttempts,
		InitialDelay:     cfg.Analyzer.InitialDelay,
		FailureThreshold: cfg.Analyzer.FailureThreshold,
		BreakerTimeout:   cfg.Analyzer.BreakerTimeout,
		Logger:           log.With(logger.Component("analyzer")),
	})

	var files port.FileStore
	if cfg.Storage.Bucket == "" {
		log.Warn("GCS_BUCKET not set, handwriting images are kept in memory")
		files = objectstore.NewMemoryStore(cfg.Storage.PublicBaseURL)
	} else {
		gcs, err := objectstore.NewGCSStore(ctx, objectstore.Config{
			Bucket:           cfg.Storage.Bucket,
			CredentialsJSON:  cfg.Storage.CredentialsJSON,
			CredentialsFile:  cfg.Storage.CredentialsFile,
			EmulatorEndpoint: cfg.Storage.EmulatorEndpoint,
			PublicBaseURL:    cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		closers = append(closers, closer{"gcs", func(context.Context) error { return gcs.Close() }})
		files = gcs
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		UoW:       uow,
		Publisher: bus,
		Logger:    log.With(logger.Component("command")),
		Roles:     roles,
	}

	var cache query.ReportCache
	if reportCache != nil {
		cache = reportCache
	}

	server := httpserver.NewServer(httpserver.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    2 * cfg.HTTP.ReadTimeout,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		UploadRateLimit: httpserver.RateLimitConfig{
			RequestsPerMinute: cfg.HTTP.UploadsPerMin,
			BurstSize:         cfg.HTTP.UploadBurst,
		},
		AllowedOrigins: []string{"*"},
		Version:        cfg.App.Version,
		Debug:          cfg.App.Debug,
	}, httpserver.Dependencies{
		Cases:             command.NewCaseRegistry(deps),
		Stages:            command.NewStageTracker(deps),
		Tasks:             command.NewTaskScoringEngine(deps),
		Assessment:        command.NewAssessmentEngine(deps),
		Activities:        command.NewActivityLifecycleManager(deps),
		Evaluation:        command.NewFinalEvaluationController(deps),
		Recommendations:   command.NewRecommendationStore(deps),
		Archiver:          command.NewSessionArchiver(deps),
		Handwriting:       command.NewHandwritingIntake(deps, analyzer, files, ml.NewNormalizer(cfg.Analyzer.MaxImageWidth)),
		Tracking:          query.NewTrackingHandler(uow),
		EvaluationSummary: query.NewEvaluationSummaryHandler(uow),
		Comprehensive:     query.NewComprehensiveHandler(uow),
		Reports:           query.NewTherapyReportsHandler(uow, cache, log.With(logger.Component("reports"))),
		Auth:              httpserver.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Health:            health,
		Features:          cfg.Features,
		Logger:            log.With(logger.Component("http")),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	if spec := cfg.Workflow.ArchiveAuditSchedule; spec != "" {
		schedule, err := scheduler.ParseSchedule(spec)
		if err != nil {
			return fmt.Errorf("ARCHIVE_AUDIT_SCHEDULE: %w", err)
		}
		jobLog := log.With(logger.Component("scheduler"))
		sched := scheduler.New(scheduler.Config{Logger: jobLog})
		auditor := query.NewArchiveAuditor(uow, cache, cfg.Workflow.ArchiveAuditBatch, jobLog)
		if err := sched.Register(jobs.NewArchiveIntegrityJob(auditor, cfg.Workflow.ArchiveAuditTimeout, jobLog), schedule); err != nil {
			return fmt.Errorf("register archive audit: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		closers = append(closers, closer{"scheduler", sched.Stop})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// subscribe registers the event handlers the feature flags turn on.
func subscribe(bus *messaging.InMemoryEventBus, cfg *config.Config, cache *redis.ReportCache, log *logger.Logger) error {
	if cache != nil {
		h := eventhandler.NewOnSessionArchivedHandler(cache, log)
		if err := bus.Subscribe(shared.EventSessionArchived, h.Handle); err != nil {
			return fmt.Errorf("subscribe cache invalidation: %w", err)
		}
	}
	if cfg.Features.Enabled(config.FeatureAuditLog) {
		if err := bus.SubscribeAll(eventhandler.NewAuditHandler(log).Handle); err != nil {
			return fmt.Errorf("subscribe audit log: %w", err)
		}
	}
	return nil
}
