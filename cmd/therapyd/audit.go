package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/persistence/postgres"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/scheduler"
	"github.com/dyslexia-hub/therapy-workflow/internal/infrastructure/scheduler/jobs"
)

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Verify the checksum of every archived session report once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is required for an archive audit")
			}
			ctx := cmd.Context()
			conn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolOptions{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer conn.Close()

			auditor := query.NewArchiveAuditor(postgres.NewUnitOfWork(conn), nil, cfg.Workflow.ArchiveAuditBatch, log)
			job := jobs.NewArchiveIntegrityJob(auditor, cfg.Workflow.ArchiveAuditTimeout, log)
			sched := scheduler.New(scheduler.Config{Logger: log})
			if err := sched.Register(job, scheduler.Every(cfg.Workflow.ArchiveAuditTimeout)); err != nil {
				return err
			}

			_, runErr := sched.RunNow(ctx, job.Name())
			if stats := job.LastRunStats(); stats != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "checked %d reports, %d failed\n", stats.Checked, len(stats.Failed))
				for _, c := range stats.Failed {
					fmt.Fprintf(out, "  case %s session %d\n", c.CaseID, c.SessionNumber)
				}
			}
			return runErr
		},
	}
}
