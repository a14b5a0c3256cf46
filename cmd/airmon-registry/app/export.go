package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/telemetry"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the location collection as JSON",
	Long: `Export the persisted location collection as a pretty-printed JSON array.

Writes to stdout unless --output is given. The output can be fed back to
the import command or the /api/v1/locations/import endpoint.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("output", "", "Write to file instead of stdout")
	exportCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfigFlag(cmd)
	if err != nil {
		return err
	}
	telemetry.Init()

	svc, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	data := svc.ExportJSON(ctx)

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(output, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	slog.Info("Exported locations", "path", output, "count", len(svc.All(ctx)))
	return nil
}
