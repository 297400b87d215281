package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/config"
	"github.com/hnetwork/hnetd/pkg/metrics"
	promexport "github.com/hnetwork/hnetd/pkg/metrics/prometheus"
	"github.com/hnetwork/hnetd/pkg/server"
	"github.com/hnetwork/hnetd/pkg/service"
	"github.com/hnetwork/hnetd/pkg/session"
	"github.com/hnetwork/hnetd/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the hnetd server",
	Long: `Start the hnetd server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/hnetd/config.yaml.

Examples:
  # Start with default config location
  hnetd start

  # Start with custom config file
  hnetd start --config /etc/hnetd/config.yaml

  # Start with environment variable overrides
  HNETD_LOGGING_LEVEL=DEBUG hnetd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("hnetd starting", "version", Version, "log_level", cfg.Logging.Level)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Metrics registry must exist before the metrics constructors run.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = startMetricsServer(cfg.Metrics.Port)
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics collection disabled")
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()
	logger.Info("store initialized", "type", cfg.Database.Type)

	registry := session.NewRegistry()
	auth := service.NewAuthService(registry, st)
	users := service.NewUserService(registry, st)

	serverMetrics := promexport.NewServerMetrics()
	router := service.NewMessageRouter(registry, st, serverMetrics)
	handler := server.NewPacketHandler(registry, auth, users, router, serverMetrics)

	srv := server.New(cfg.Server, registry, handler, router, serverMetrics)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	stopMetricsServer(metricsServer)
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startMetricsServer serves the Prometheus endpoint on its own listener so
// scrapes never contend with the messaging port.
func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

func stopMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
}
