package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "defectctl",
		Short: "Defect tracker maintenance tool",
		Long: `defectctl works with the files and database behind the defect tracker.

It can dump the Snapshot annotations embedded in a GLB/GLTF scan and run
database schema migrations.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	defaultConfig := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to config.yaml")

	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newMigrateCmd(&configPath))

	return cmd
}
