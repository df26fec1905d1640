package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/timetrack/internal/metrics"
	"github.com/goodtune/timetrack/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout bounds a single upload request.
const DefaultRequestTimeout = 10 * time.Second

// QueueConfig holds upload queue configuration
type QueueConfig struct {
	RequestTimeout time.Duration
}

// Queue holds sessions owed to the remote sink, keyed by project, and
// delivers them one project at a time. The pending map is persisted under
// storage.PendingUploadsKey after every mutation so it survives restarts.
type Queue struct {
	store   storage.Store
	sink    Sink
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string][]storage.TimeWindow
	closed  bool

	draining atomic.Bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewQueue creates a queue and loads any pending uploads left by a previous
// run. A malformed pending document is discarded with a warning.
func NewQueue(ctx context.Context, store storage.Store, sink Sink, config QueueConfig, logger zerolog.Logger) (*Queue, error) {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	bg, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:   store,
		sink:    sink,
		timeout: config.RequestTimeout,
		logger:  logger.With().Str("component", "upload-queue").Logger(),
		pending: make(map[string][]storage.TimeWindow),
		ctx:     bg,
		cancel:  cancel,
	}

	raw, err := store.Get(ctx, storage.PendingUploadsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		cancel()
		return nil, fmt.Errorf("load pending uploads: %w", err)
	default:
		if err := json.Unmarshal(raw, &q.pending); err != nil {
			q.logger.Warn().Err(err).Msg("Ignoring malformed pending uploads")
			q.pending = make(map[string][]storage.TimeWindow)
		}
	}

	for project, sessions := range q.pending {
		if len(sessions) == 0 {
			delete(q.pending, project)
		}
	}
	q.updateGauge()

	if n := len(q.pending); n > 0 {
		q.logger.Info().Int("projects", n).Msg("Loaded pending uploads")
	}

	return q, nil
}

// Enqueue appends sessions to the pending list of project, skipping entries
// already pending, and persists the result.
func (q *Queue) Enqueue(ctx context.Context, project string, sessions []storage.TimeWindow) error {
	if len(sessions) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.pending[project])
	q.pending[project] = appendUnique(q.pending[project], sessions)
	if len(q.pending[project]) == before {
		return nil
	}

	return q.persist(ctx)
}

// Trigger starts a drain in the background. Failures are logged; the
// sessions stay pending until the next drain.
func (q *Queue) Trigger() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		if err := q.Drain(q.ctx); err != nil {
			q.logger.Warn().Err(err).Msg("Upload drain stopped; will retry on next trigger")
		}
	}()
}

// Drain delivers every pending project in lexicographic order. Only one
// drain runs at a time; a call made while another is in progress returns
// immediately. On the first failure the failed batch is put back ahead of
// anything enqueued meanwhile and the remaining projects are left for the
// next drain.
func (q *Queue) Drain(ctx context.Context) error {
	_, err := q.TryDrain(ctx)
	return err
}

// TryDrain is Drain that also reports whether this call did the work. It
// returns false without error when another drain was already running.
func (q *Queue) TryDrain(ctx context.Context) (bool, error) {
	if !q.draining.CompareAndSwap(false, true) {
		q.logger.Debug().Msg("Upload drain already in progress")
		return false, nil
	}
	defer q.draining.Store(false)

	for _, project := range q.projects() {
		if err := q.drainProject(ctx, project); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (q *Queue) drainProject(ctx context.Context, project string) error {
	q.mu.Lock()
	batch := q.pending[project]
	if len(batch) == 0 {
		q.mu.Unlock()
		return nil
	}
	delete(q.pending, project)
	if err := q.persist(ctx); err != nil {
		q.pending[project] = appendUnique(batch, q.pending[project])
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, q.timeout)
	start := time.Now()
	err := q.sink.Upload(reqCtx, project, batch)
	cancel()
	metrics.UploadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failure").Inc()

		q.mu.Lock()
		q.pending[project] = appendUnique(batch, q.pending[project])
		if perr := q.persist(context.WithoutCancel(ctx)); perr != nil {
			q.logger.Error().Err(perr).Str("project", project).Msg("Failed to persist re-queued uploads")
		}
		q.mu.Unlock()

		return fmt.Errorf("upload %s: %w", project, err)
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	q.logger.Info().
		Str("project", project).
		Int("sessions", len(batch)).
		Dur("duration", time.Since(start)).
		Msg("Uploaded sessions")

	return nil
}

// Pending returns a copy of the sessions pending for project.
func (q *Queue) Pending(project string) []storage.TimeWindow {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]storage.TimeWindow(nil), q.pending[project]...)
}

// PendingAll returns a copy of the whole pending map.
func (q *Queue) PendingAll() map[string][]storage.TimeWindow {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string][]storage.TimeWindow, len(q.pending))
	for project, sessions := range q.pending {
		out[project] = append([]storage.TimeWindow(nil), sessions...)
	}
	return out
}

// Wait blocks until every triggered drain has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops accepting triggers, waits for running drains and cancels the
// queue's background context.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

func (q *Queue) projects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	projects := make([]string, 0, len(q.pending))
	for project := range q.pending {
		projects = append(projects, project)
	}
	sort.Strings(projects)
	return projects
}

// persist writes the pending map. Must be called with q.mu held.
func (q *Queue) persist(ctx context.Context) error {
	q.updateGauge()

	data, err := json.Marshal(q.pending)
	if err != nil {
		return fmt.Errorf("marshal pending uploads: %w", err)
	}
	if err := q.store.Set(ctx, storage.PendingUploadsKey, data); err != nil {
		return fmt.Errorf("save pending uploads: %w", err)
	}
	return nil
}

func (q *Queue) updateGauge() {
	total := 0
	for _, sessions := range q.pending {
		total += len(sessions)
	}
	metrics.PendingUploads.Set(float64(total))
}

// appendUnique appends the entries of src not already present in dst.
func appendUnique(dst, src []storage.TimeWindow) []storage.TimeWindow {
	seen := make(map[storage.TimeWindow]struct{}, len(dst)+len(src))
	out := make([]storage.TimeWindow, 0, len(dst)+len(src))
	for _, w := range dst {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	for _, w := range src {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
