package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	httpserver "github.com/dyslexia-hub/therapy-workflow/internal/interface/http"
)

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id> <teacher|doctor|parent>",
		Short: "Issue a bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			role, err := shared.ParseRole(args[1])
			if err != nil {
				return err
			}
			actor, err := shared.NewActor(args[0], role)
			if err != nil {
				return err
			}
			tok, err := httpserver.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
