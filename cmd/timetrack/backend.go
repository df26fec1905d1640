package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/goodtune/timetrack/internal/config"
	"github.com/goodtune/timetrack/internal/storage"
	"github.com/rs/zerolog"
)

// errStoreLocked is returned when the store stays locked by another
// timetrack process that is not serving the API.
var errStoreLocked = errors.New("store is locked by another timetrack process")

// lockWait bounds how long a command waits for another command to release
// the store.
var lockWait = 10 * time.Second

// backend is what the CLI commands run against: the store opened in this
// process, or the running daemon's API. The tracker caches day logs and
// rewrites them whole, so a store only ever has one writer.
type backend interface {
	Location() *time.Location
	RecordSession(ctx context.Context, window storage.TimeWindow, project string) error
	TimeInWindow(ctx context.Context, window storage.TimeWindow, project string) (time.Duration, error)
	TodayTime(ctx context.Context, project string) (time.Duration, storage.TimeWindow, error)
	DayLog(ctx context.Context, project, day string) ([]storage.TimeWindow, error)
	Pending(ctx context.Context) (map[string][]storage.TimeWindow, error)
	Flush(ctx context.Context) (flushResult, error)
	Close()
}

type flushResult struct {
	InProgress bool
	Pending    int
}

// newStoreLock returns the lock guarding cfg's store.
func newStoreLock(cfg *config.Config) (*flock.Flock, error) {
	path := daemonLockPath(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}
	return flock.New(path), nil
}

// daemonLockPath places the lock beside the bolt file, or in the temp dir
// keyed by listen address for other backends.
func daemonLockPath(cfg *config.Config) string {
	if (cfg.Storage.Type == "" || cfg.Storage.Type == "bolt") && cfg.Storage.Path != "" {
		return cfg.Storage.Path + ".lock"
	}
	name := strings.NewReplacer(":", "_", "/", "_").Replace(fmt.Sprintf("%s_%d", cfg.Server.BindAddress, cfg.Server.APIPort))
	return filepath.Join(os.TempDir(), "timetrack-"+name+".lock")
}

// commandBackend loads the configuration and opens the backend for a CLI
// command, logging to stderr.
func commandBackend(ctx context.Context) (backend, error) {
	cfg, logger, err := loadConfig(os.Stderr)
	if err != nil {
		return nil, err
	}
	return openBackend(ctx, cfg, logger)
}

// openBackend opens the store locally when its lock is free. When a daemon
// holds the lock and answers on its API, commands are sent there instead.
// Otherwise it waits up to lockWait for the holder to finish.
func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (backend, error) {
	lock, err := newStoreLock(cfg)
	if err != nil {
		return nil, err
	}

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
	}

	if !locked {
		remote, err := newDaemonBackend(cfg)
		if err != nil {
			return nil, err
		}
		if err := remote.ping(ctx); err == nil {
			logger.Debug().Str("daemon", remote.base).Msg("Store held by running daemon; using its API")
			return remote, nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, lockWait)
		defer cancel()
		locked, err = lock.TryLockContext(waitCtx, 100*time.Millisecond)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", errStoreLocked, lock.Path())
		}
	}

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &localBackend{app: a, lock: lock}, nil
}

// localBackend serves commands from a store opened in this process. It holds
// the store lock until Close.
type localBackend struct {
	app  *app
	lock *flock.Flock
}

func (b *localBackend) Location() *time.Location {
	return b.app.tracker.Location()
}

// RecordSession records the window and waits for the drain it starts so the
// process can exit afterwards.
func (b *localBackend) RecordSession(ctx context.Context, window storage.TimeWindow, project string) error {
	if err := b.app.tracker.RecordSession(ctx, window, project); err != nil {
		return err
	}
	if b.app.queue != nil {
		b.app.queue.Wait()
	}
	return nil
}

func (b *localBackend) TimeInWindow(ctx context.Context, window storage.TimeWindow, project string) (time.Duration, error) {
	return b.app.tracker.TimeInWindow(ctx, window, project)
}

func (b *localBackend) TodayTime(ctx context.Context, project string) (time.Duration, storage.TimeWindow, error) {
	today := b.app.tracker.Today()
	total, err := b.app.tracker.TimeInWindow(ctx, today, project)
	return total, today, err
}

func (b *localBackend) DayLog(ctx context.Context, project, day string) ([]storage.TimeWindow, error) {
	return b.app.tracker.DayLog(ctx, project, day)
}

func (b *localBackend) Pending(ctx context.Context) (map[string][]storage.TimeWindow, error) {
	if b.app.queue == nil {
		return nil, errUploadsDisabled
	}
	return b.app.queue.PendingAll(), nil
}

func (b *localBackend) Flush(ctx context.Context) (flushResult, error) {
	if b.app.queue == nil {
		return flushResult{}, errUploadsDisabled
	}
	ran, err := b.app.queue.TryDrain(ctx)
	if err != nil {
		return flushResult{}, err
	}
	return flushResult{InProgress: !ran, Pending: countPending(b.app.queue.PendingAll())}, nil
}

func (b *localBackend) Close() {
	b.app.Close()
	if err := b.lock.Unlock(); err != nil {
		b.app.logger.Warn().Err(err).Str("path", b.lock.Path()).Msg("Failed to release store lock")
	}
}

func countPending(pending map[string][]storage.TimeWindow) int {
	n := 0
	for _, sessions := range pending {
		n += len(sessions)
	}
	return n
}
