package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goodtune/timetrack/internal/config"
	"github.com/goodtune/timetrack/internal/storage"
	"github.com/goodtune/timetrack/internal/storage/bolt"
	"github.com/goodtune/timetrack/internal/storage/memory"
	"github.com/goodtune/timetrack/internal/storage/redis"
	"github.com/goodtune/timetrack/internal/tracking"
	"github.com/goodtune/timetrack/internal/upload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app wires storage, the tracker and the optional upload queue from config.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   storage.Store
	tracker *tracking.Tracker
	client  *upload.Client // nil when uploads are disabled
	queue   *upload.Queue  // nil when uploads are disabled
}

// loadConfig reads the configuration and installs the logger. Logs go to
// logOut so CLI commands can keep stdout for their own output.
func loadConfig(logOut io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging, logOut)
	log.Logger = logger
	return cfg, logger, nil
}

// openApp opens storage, the tracker and the upload queue. Callers must hold
// the store lock; see newStoreLock.
func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Tracking.Location()
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}

	trackerCfg := tracking.Config{
		Location: loc,
		MergeGap: parseDuration(cfg.Tracking.MergeGap, tracking.DefaultMergeGap),
	}

	if cfg.Upload.Enabled() {
		timeout := parseDuration(cfg.Upload.RequestTimeout, upload.DefaultRequestTimeout)
		a.client = upload.NewClient(cfg.Upload.Endpoint, cfg.Upload.Token, timeout)

		a.queue, err = upload.NewQueue(ctx, store, a.client, upload.QueueConfig{RequestTimeout: timeout}, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize upload queue: %w", err)
		}
		trackerCfg.Uploads = a.queue
	}

	a.tracker = tracking.NewTracker(store, trackerCfg, logger)

	logger.Debug().
		Str("storage", cfg.Storage.Type).
		Str("timezone", loc.String()).
		Bool("uploads", a.queue != nil).
		Msg("Application initialized")

	return a, nil
}

// Close waits for in-flight uploads and closes storage.
func (a *app) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
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

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// inputLayouts are tried in order for command-line timestamps without an
// explicit offset; they are interpreted in the tracking timezone.
var inputLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	storage.DayLayout,
}

// parseTime accepts RFC 3339 or a local timestamp in loc.
func parseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339 or \"YYYY-MM-DD HH:MM\")", value)
}
