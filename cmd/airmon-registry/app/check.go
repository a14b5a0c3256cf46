package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/telemetry"
)

var checkCmd = &cobra.Command{
	Use:   "check [location-id]",
	Short: "Test ThingSpeak connectivity for a location or channel",
	Long: `Probe the ThingSpeak channel of a registered location, or an ad hoc channel
given with --channel and --read-key, and print the result as JSON.

The command exits non-zero when the probe fails, so it can be used from
health check scripts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

const checkTimeout = 15 * time.Second

func init() {
	checkCmd.Flags().String("channel", "", "ThingSpeak channel ID to probe")
	checkCmd.Flags().String("read-key", "", "ThingSpeak read API key")
	checkCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
}

// resolveProbeTarget returns the channel id and read key to probe, either
// from a registered location or from the --channel/--read-key flags.
func resolveProbeTarget(ctx context.Context, cmd *cobra.Command, args []string) (string, string, error) {
	if len(args) == 1 {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return "", "", err
		}
		svc, err := buildRegistry(ctx, cfg)
		if err != nil {
			return "", "", err
		}
		loc, err := svc.Get(ctx, args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve location %q: %w", args[0], err)
		}
		if !loc.Configured() {
			return "", "", fmt.Errorf("location %q has no channel configured", args[0])
		}
		return loc.ChannelID, loc.ReadKey, nil
	}

	channelID, err := cmd.Flags().GetString("channel")
	if err != nil {
		return "", "", err
	}
	readKey, err := cmd.Flags().GetString("read-key")
	if err != nil {
		return "", "", err
	}
	if channelID == "" {
		return "", "", fmt.Errorf("either a location id or --channel is required")
	}
	return channelID, readKey, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	telemetry.Init()

	cfg, err := loadConfigFlag(cmd)
	if err != nil {
		return err
	}

	channelID, readKey, err := resolveProbeTarget(ctx, cmd, args)
	if err != nil {
		return err
	}

	probe := buildProbe(cfg)
	result := probe.TestConnection(ctx, channelID, readKey)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))

	if !result.Success {
		return fmt.Errorf("connection test failed: %s", result.Message)
	}
	return nil
}
