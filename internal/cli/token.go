package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ops-reports/internal/platform/auth"
	"github.com/pesio-ai/be-ops-reports/internal/platform/config"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// NewTokenCommand creates the token command.
func NewTokenCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <person-id>",
		Short: "Print a bearer token for a person (development use)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.Configuration("AUTH_JWT_SECRET must be set")
			}

			token, err := auth.Issue(cfg.Auth.JWTSecret, cfg.Auth.Issuer, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
