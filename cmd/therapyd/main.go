// Package main is the entry point of the therapy workflow service.
//
// Subcommands:
//
//	therapyd serve                 run the REST API
//	therapyd migrate up|down|status manage the PostgreSQL schema
//	therapyd token <user> <role>   issue a bearer token for local use
//	therapyd audit                 verify archived report checksums once
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dyslexia-hub/therapy-workflow/config"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "therapyd",
		Short:         "Dyslexia therapy workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newAuditCmd(),
	)
	return root
}

// loadDotEnv loads the given file, or .env when present. Variables already set
// in the environment win.
func loadDotEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	format := cfg.Observability.LogFormat
	if cfg.IsDevelopment() && os.Getenv("LOG_FORMAT") == "" {
		format = "console"
	}
	log, err := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    format,
		AddCaller: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log.With(logger.String("service", cfg.App.Name)), nil
}
