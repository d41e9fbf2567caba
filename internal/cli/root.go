// Package cli wires the reportflow commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ops-reports/internal/platform/config"
	"github.com/pesio-ai/be-ops-reports/internal/platform/logger"
)

// NewRootCommand creates the root command for the reportflow binary.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportflow",
		Short: "Engagement report approval workflow service",
		Long: `reportflow runs the report approval workflow service and its operator tasks.

Configuration is read from the environment (DB_*, NATS_*, REDIS_*, AUTH_*,
WORKFLOW_*, SERVER_*, SERVICE_*).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewSeedChainsCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
}
