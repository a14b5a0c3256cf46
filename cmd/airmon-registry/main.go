// Package main is the entry point for the airmon registry server.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"

	"github.com/SCYip/BIPH-Air-Monitoring-System/cmd/airmon-registry/app"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/config"
)

// getLogLevel parses the AIRMON_LOG_LEVEL environment variable and returns the
// corresponding slog.Level. Falls back to LOG_LEVEL without the prefix.
// Defaults to slog.LevelInfo if neither is set or if the value is invalid.
func getLogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}

	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", levelStr)
		return slog.LevelInfo
	}
}

func main() {
	// Log to stderr to keep stdout clean for commands that output data
	// (e.g., version --format json, export).
	handler := tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      getLogLevel(),
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
