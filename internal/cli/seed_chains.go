package cli

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ops-reports/internal/platform/config"
	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// NewSeedChainsCommand creates the seed-chains command.
func NewSeedChainsCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-chains",
		Short: "Replace organizations' approval chains from a YAML file",
		Long: `Replace the approval chains of every organization listed in the file.

All organizations are written in one transaction. Organizations not listed
keep their chains. Cached chains for the listed organizations are dropped
when REDIS_ADDR is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			seed, err := repository.ParseChainSeed(data)
			if err != nil {
				return err
			}

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

			orgIDs, err := repository.ApplyChainSeed(cmd.Context(), db, seed)
			if err != nil {
				return err
			}

			if cfg.Redis.Addr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer rdb.Close()
				cache := repository.NewCachedApprovalChainStore(repository.NewApprovalChainRepository(db), rdb, cfg.Redis.ChainTTL, log.Logger)
				if err := cache.Invalidate(cmd.Context(), orgIDs...); err != nil {
					log.Warn().Err(err).Msg("Failed to invalidate cached approval chains")
				}
			}

			log.Info().Strs("organizations", orgIDs).Msg("Approval chains seeded")
			fmt.Fprintf(cmd.OutOrStdout(), "%d organization chain(s) replaced\n", len(orgIDs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML chain definition file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
