package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/defect-tracker/internal/infra/gltf"
)

func newExtractCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract <scan.glb|scan.gltf>",
		Short: "Print the Snapshot ids and coordinates stored in a scan",
		Example: `  defectctl extract site.glb
  defectctl extract --json site.gltf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("File not found: %s", path)
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			snaps, err := gltf.NewExtractor(logger).ExtractFile(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No Snapshot metadata found.")
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintf(out, "%s: X=%.3f, Y=%.3f, Z=%.3f (label=%s)\n",
					s.ID, s.Coordinates.X, s.Coordinates.Y, s.Coordinates.Z, s.Label)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of human-readable lines")
	return cmd
}
