package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodtune/timetrack/internal/api"
	"github.com/goodtune/timetrack/internal/metrics"
	"github.com/goodtune/timetrack/internal/systemd"
	"github.com/goodtune/timetrack/internal/upload"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the timetrack daemon",
	Long: `Start the timetrack daemon: the local HTTP API used by editor
integrations, the metrics endpoint and the background upload queue.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, logger, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting timetrack")

	// The daemon is the store's only writer while it runs; CLI commands
	// that find the lock held talk to its API instead.
	lock, err := newStoreLock(cfg)
	if err != nil {
		return err
	}
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("another timetrack process holds %s", lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release daemon lock")
		}
	}()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Str("timezone", a.tracker.Location().String()).
		Msg("Storage initialized")

	// Resend everything stored so sessions recorded while the sink was
	// unreachable, or before a crash, reach it eventually.
	var retryScheduler *upload.RetryScheduler
	var uploads api.Uploads
	if a.queue != nil {
		uploads = a.queue

		if err := a.tracker.Reconcile(ctx); err != nil {
			logger.Error().Err(err).Msg("Startup reconciliation failed")
		}

		retryScheduler = upload.NewRetryScheduler(
			a.queue,
			parseDuration(cfg.Upload.RetryInterval, 0),
			logger,
		)
		retryScheduler.Start()

		logger.Info().
			Str("endpoint", cfg.Upload.Endpoint).
			Msg("Upload queue initialized")
	} else {
		logger.Info().Msg("Uploads disabled; sessions are tracked locally only")
	}

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{
		ListenAddr: apiAddr,
		MaxWindow:  parseDuration(cfg.Server.MaxWindow, api.DefaultMaxWindow),
	}, a.tracker, uploads, logger)
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	logger.Info().Msg("timetrack startup complete")
	logger.Info().Msgf("API: http://%s", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if retryScheduler != nil {
		retryScheduler.Stop()
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("timetrack stopped")

	return nil
}
