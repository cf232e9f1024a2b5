package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/postgres"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator, log *logger.Logger) error {
					n, err := m.Migrate(ctx)
					if err != nil {
						return err
					}
					log.Info("migrations applied", logger.Int("count", n))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator, log *logger.Logger) error {
					if err := m.Rollback(ctx); err != nil {
						return err
					}
					log.Info("latest migration rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator, _ *logger.Logger) error {
					migrations, err := m.Status(ctx)
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					for _, mg := range migrations {
						applied := "pending"
						if mg.IsApplied {
							applied = mg.AppliedAt.Format(time.RFC3339)
						}
						fmt.Fprintf(out, "%03d  %-32s %s\n", mg.Version, mg.Name, applied)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *postgres.Migrator, *logger.Logger) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	conn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer conn.Close()

	return fn(ctx, postgres.NewMigrator(conn), log)
}
