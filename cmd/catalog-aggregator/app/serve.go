package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	catalogapp "github.com/stacklok/catalog-aggregator/internal/app"
	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog API server",
	Long: `Start the catalog API server.

GET /api/repos returns every configured source that resolved to a catalog document,
in configuration order. Results are cached and rebuilt on the first request after
the cache TTL has elapsed. Other paths serve the front-end from --static-dir.

The configuration file (--config) is optional; without it the built-in source list
and defaults are used. See examples/ for a sample configuration.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	defaultStaticDir       = "public"
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (defaults to :$PORT, then :3000)")
	serveCmd.Flags().String("static-dir", defaultStaticDir, "Directory of the front-end bundle")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("static-dir", serveCmd.Flags().Lookup("static-dir"))
	if err != nil {
		slog.Error("Failed to bind static-dir flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindEnv("port", "PORT")
	if err != nil {
		slog.Error("Failed to bind PORT environment variable", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads the file named by --config, or the built-in defaults when unset
func loadConfig() (*config.Config, error) {
	var opts []config.Option
	configPath := viper.GetString("config")
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if configPath != "" {
		slog.Info("Loaded configuration", "path", configPath, "sources", len(cfg.GetSources()))
	} else {
		slog.Info("No configuration file given, using built-in sources", "sources", len(cfg.GetSources()))
	}
	return cfg, nil
}

// resolveAddress picks the listen address: --address, then PORT, then the config file.
// An empty result leaves the choice to the config file or the built-in default.
func resolveAddress(flagAddress, port string) string {
	if flagAddress != "" {
		return flagAddress
	}
	if port != "" {
		return ":" + port
	}
	return ""
}

// resolveStaticDir prefers an explicit --static-dir, then the config file, then the default
func resolveStaticDir(flagDir string, flagChanged bool, cfg *config.Config) string {
	if flagChanged || cfg.GetStaticDir() == "" {
		return flagDir
	}
	return cfg.GetStaticDir()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	opts := []catalogapp.CatalogAppOptions{
		catalogapp.WithConfig(cfg),
		catalogapp.WithStaticDir(resolveStaticDir(
			viper.GetString("static-dir"),
			cmd.Flags().Changed("static-dir"),
			cfg,
		)),
		catalogapp.WithMeterProvider(tel.MeterProvider()),
		catalogapp.WithTracerProvider(tel.TracerProvider()),
		catalogapp.WithMetricsHandler(tel.MetricsHandler()),
	}
	if address := resolveAddress(viper.GetString("address"), viper.GetString("port")); address != "" {
		opts = append(opts, catalogapp.WithAddress(address))
	}

	app, err := catalogapp.NewCatalogApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	slog.Info("Catalog aggregator starting",
		"address", app.GetHTTPServer().Addr,
		"sources", len(cfg.GetSources()),
		"cache_ttl", cfg.GetCacheTTL().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	}

	return app.Stop(defaultGracefulTimeout)
}
