package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/telemetry"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a location collection from a JSON file",
	Long: `Replace the persisted location collection with the contents of a JSON file.

The file must hold a top-level JSON array of location records, as produced
by the export command. The existing collection is discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfigFlag(cmd)
	if err != nil {
		return err
	}
	telemetry.Init()

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	svc, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	if err := svc.ImportJSON(ctx, payload); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	slog.Info("Imported locations", "path", args[0], "count", len(svc.All(ctx)))
	return nil
}
