package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/api"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/config"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/httpclient"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/registry"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/storage"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/telemetry"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/thingspeak"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the location registry API server",
	Long: `Start the registry API server that backs the campus air quality dashboard.

Without --config the server runs with built-in defaults: locations are
persisted under ./data and probes go to the public ThingSpeak API. A YAML
configuration file can override the storage path, the ThingSpeak endpoint
and the default location set. See examples/ for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 15 * time.Second // Must cover a slow ThingSpeak probe
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 20 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}
}

// loadConfig loads the configuration file named by --config, or the built-in
// defaults when no file is given.
func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		slog.Info("No config file given, using built-in defaults")
		return config.Default(), nil
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"registry", cfg.GetRegistryName(),
		"storage", cfg.GetStoragePath(),
		"defaults", len(cfg.Defaults))
	return cfg, nil
}

// buildRegistry constructs the location registry from configuration, loading
// any persisted state up front.
func buildRegistry(ctx context.Context, cfg *config.Config) (registry.Service, error) {
	store := storage.NewFileStore(cfg.GetStoragePath())
	svc, err := registry.New(ctx, store,
		registry.WithStorageKey(cfg.GetStorageKey()),
		registry.WithDefaults(cfg.DefaultLocations()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create location registry: %w", err)
	}
	return svc, nil
}

// buildProbe constructs the ThingSpeak client from configuration.
func buildProbe(cfg *config.Config) *thingspeak.Client {
	return thingspeak.NewClient(
		thingspeak.WithBaseURL(cfg.GetEndpoint()),
		thingspeak.WithHTTPClient(httpclient.NewDefaultClient(cfg.GetTimeout())),
		thingspeak.WithMaxRetries(cfg.GetMaxRetries()),
	)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	telemetry.Init()

	svc, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	probe := buildProbe(cfg)

	router := api.NewServer(svc, probe,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			telemetry.Middleware,
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
