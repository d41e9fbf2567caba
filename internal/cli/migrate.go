package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ops-reports/internal/platform/config"
	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			db, err := database.New(cmd.Context(), cfg.DatabaseOptions())
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			applied, err := repository.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				log.Info().Str("migration", name).Msg("Migration applied")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
			return nil
		},
	}
}
