package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/defect-tracker/internal/config"
	"github.com/bryanwahyu/defect-tracker/internal/infra/db/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the defects schema",
		Long:      `Runs the embedded migrations for the configured database driver (postgres or mysql).`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			if !cfg.DatabaseEnabled() {
				return errors.New("no database configured (set database.driver or DATABASE_DRIVER)")
			}
			if err := migrations.Run(cfg.Database.Driver, cfg.MigrateURL(), args[0], steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete (%s)\n", args[0], cfg.Database.Driver)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")
	return cmd
}
