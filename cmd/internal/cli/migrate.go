package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"basecampy/cmd/internal/app"
)

func newMigrateCmd() *cobra.Command {
	cfg, cfgErr := app.LoadConfig()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply identity schema migrations to Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			if err := app.Migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrated schema %q\n", cfg.DBSchema)
			return err
		},
	}

	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres URL (env: BASECAMPY_DATABASE_URL)")
	cmd.Flags().StringVar(&cfg.DBSchema, "schema", cfg.DBSchema, "Target schema (env: BASECAMPY_DB_SCHEMA)")

	return cmd
}
