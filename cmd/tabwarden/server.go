package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/tabwarden/internal/bridge"
	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/config"
	"github.com/goodtune/tabwarden/internal/coordinator"
	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/ledger"
	"github.com/goodtune/tabwarden/internal/metrics"
	"github.com/goodtune/tabwarden/internal/notify"
	"github.com/goodtune/tabwarden/internal/policy"
	"github.com/goodtune/tabwarden/internal/storage"
	"github.com/goodtune/tabwarden/internal/storage/bolt"
	"github.com/goodtune/tabwarden/internal/storage/redis"
	"github.com/goodtune/tabwarden/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the TabWarden daemon",
	Long:  `Start the TabWarden daemon with the extension bridge and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting TabWarden")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize domain matcher and accrual gate
	matcher, err := domain.NewMatcher(cfg.Tracking.DomainCacheSize)
	if err != nil {
		return fmt.Errorf("failed to initialize domain matcher: %w", err)
	}

	gate, err := policy.GateByName(cfg.Tracking.Gate)
	if err != nil {
		return err
	}
	logger.Info().Str("gate", gate.Name()).Msg("Accrual gate selected")

	// Initialize tracking core
	clk := clock.RealClock{}
	engine := policy.NewEngine(matcher, gate, clk, logger)
	led := ledger.New(clk)

	notifier := notify.NewDispatcher(notify.Config{
		Endpoint:   cfg.Notify.Endpoint,
		ServiceID:  cfg.Notify.ServiceID,
		TemplateID: cfg.Notify.TemplateID,
		PublicKey:  cfg.Notify.PublicKey,
		Timeout:    parseDuration(cfg.Notify.Timeout, 10*time.Second),
	}, logger)

	if !notifier.Configured() {
		logger.Warn().Msg("Email delivery not configured, accountability notifications disabled")
	}

	hub := bridge.NewHub(logger)

	coord := coordinator.New(coordinator.Options{
		Store:         store,
		Engine:        engine,
		Ledger:        led,
		Clock:         clk,
		Notifier:      notifier,
		Sink:          hub,
		Logger:        logger,
		TickInterval:  parseDuration(cfg.Tracking.TickInterval, time.Second),
		FlushInterval: parseDuration(cfg.Tracking.FlushInterval, 10*time.Second),
		PeriodicFlush: parseDuration(cfg.Tracking.PeriodicFlush, time.Minute),
	})

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = coord.Load(loadCtx)
	loadCancel()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	coordDone := make(chan struct{})
	go func() {
		coord.Run(runCtx)
		close(coordDone)
	}()

	logger.Info().Msg("Coordinator started")

	// Initialize Bridge Server
	bridgeAddr := fmt.Sprintf("%s:%d", cfg.Bridge.BindAddress, cfg.Bridge.Port)
	bridgeServer := bridge.NewServer(
		bridgeAddr,
		coord,
		hub,
		store.Settings(),
		parseDuration(cfg.Bridge.HeartbeatInterval, 15*time.Second),
		logger,
	)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Bridge != nil {
		bridgeServer.SetListener(sdListeners.Bridge)
	}

	if err := bridgeServer.Start(); err != nil {
		return fmt.Errorf("failed to start Bridge Server: %w", err)
	}

	logger.Info().
		Str("addr", bridgeAddr).
		Msg("Bridge Server started")

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	// Log startup complete
	logger.Info().Msg("TabWarden startup complete")
	logger.Info().Msgf("Bridge: http://%s/v1", bridgeAddr)
	if cfg.Metrics.Enabled {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Metrics.BindAddress, cfg.Metrics.Port)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, reloading rules...")
			reloadCtx, reloadCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := coord.ReloadRules(reloadCtx); err != nil {
				logger.Error().Err(err).Msg("Failed to reload rules")
			}
			reloadCancel()
			continue
		}

		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop the bridge first so no new events race the final flush.
	if err := bridgeServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Bridge Server")
	}

	runCancel()
	select {
	case <-coordDone:
	case <-time.After(10 * time.Second):
		logger.Error().Msg("Coordinator did not stop in time")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("TabWarden stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
