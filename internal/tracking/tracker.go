package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/timetrack/internal/metrics"
	"github.com/goodtune/timetrack/internal/storage"
	"github.com/rs/zerolog"
)

// Tracker records activity sessions into per-project, per-day logs and
// answers time-window queries against them.
//
// Day logs are loaded lazily and cached for the life of the tracker, and
// every save rewrites the whole log. Only one tracker may write a store at a
// time; the timetrack command enforces this with a lock file.
type Tracker struct {
	store    storage.Store
	location *time.Location
	mergeGap time.Duration
	clock    Clock
	uploads  Enqueuer
	days     map[string][]storage.TimeWindow // key: storage.SessionKey
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewTracker creates a new tracker over store.
func NewTracker(store storage.Store, config Config, logger zerolog.Logger) *Tracker {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MergeGap == 0 {
		config.MergeGap = DefaultMergeGap
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}

	return &Tracker{
		store:    store,
		location: config.Location,
		mergeGap: config.MergeGap,
		clock:    config.Clock,
		uploads:  config.Uploads,
		days:     make(map[string][]storage.TimeWindow),
		logger:   logger.With().Str("component", "tracker").Logger(),
	}
}

// Location returns the timezone used for day keys.
func (t *Tracker) Location() *time.Location {
	return t.location
}

// RecordSession stores window for project. Windows with start >= end are
// dropped silently. Windows crossing UTC midnight are split and each piece is
// filed under the local day of its start. When the timezone is not UTC both
// pieces can share a day key, in which case the tail merge joins them again
// and the stored entry crosses UTC midnight. The returned error is always a
// storage failure; upload problems are never reported here.
func (t *Tracker) RecordSession(ctx context.Context, window storage.TimeWindow, project string) error {
	if !window.Valid() {
		metrics.SessionsDiscarded.Inc()
		t.logger.Debug().
			Int64("start", window.Start).
			Int64("end", window.End).
			Str("project", project).
			Msg("Discarding empty session")
		return nil
	}

	metrics.TrackedSeconds.Add(window.Duration().Seconds())

	pieces := splitAtUTCMidnight(window)
	if len(pieces) > 1 {
		metrics.SessionSplits.Add(float64(len(pieces) - 1))
		t.logger.Debug().
			Str("project", project).
			Stringer("window", window).
			Int("pieces", len(pieces)).
			Msg("Split session at UTC midnight")
	}

	for _, piece := range pieces {
		if err := t.recordDay(ctx, piece, project); err != nil {
			return err
		}
	}

	if t.uploads != nil {
		t.uploads.Trigger()
	}

	return nil
}

// recordDay merges one split piece into the log of its local day.
func (t *Tracker) recordDay(ctx context.Context, window storage.TimeWindow, project string) error {
	day := t.dayKey(window.Start)

	t.mu.Lock()
	defer t.mu.Unlock()

	previous, err := t.loadDay(ctx, project, day)
	if err != nil {
		return err
	}

	updated := make([]storage.TimeWindow, len(previous), len(previous)+1)
	copy(updated, previous)

	// Only the tail is considered: callers feed activity in time order, so
	// an older entry is never revisited.
	outcome := "appended"
	if n := len(updated); n > 0 && mergeable(updated[n-1], window, t.mergeGap) {
		last := updated[n-1]
		updated[n-1] = storage.TimeWindow{
			Start: min(last.Start, window.Start),
			End:   max(last.End, window.End),
		}
		outcome = "merged"
	} else {
		updated = append(updated, window)
	}

	if err := t.saveDay(ctx, project, day, updated); err != nil {
		return err
	}
	metrics.SessionsRecorded.WithLabelValues(outcome).Inc()

	t.logger.Debug().
		Str("project", project).
		Str("day", day).
		Stringer("window", window).
		Str("outcome", outcome).
		Int("entries", len(updated)).
		Msg("Recorded session")

	if t.uploads != nil {
		if changed := changedWindows(previous, updated); len(changed) > 0 {
			if err := t.uploads.Enqueue(ctx, project, changed); err != nil {
				t.logger.Error().Err(err).
					Str("project", project).
					Str("day", day).
					Msg("Failed to persist pending uploads; startup reconciliation will resend")
			}
		}
	}

	return nil
}

// DayLog returns a copy of the stored sessions for project on day (YYYY-MM-DD).
func (t *Tracker) DayLog(ctx context.Context, project, day string) ([]storage.TimeWindow, error) {
	if _, err := time.Parse(storage.DayLayout, day); err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", day, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	log, err := t.loadDay(ctx, project, day)
	if err != nil {
		return nil, err
	}
	return append([]storage.TimeWindow(nil), log...), nil
}

// Reconcile re-enqueues every stored session of every project and starts a
// drain. Sessions that were already delivered are sent again; the remote
// side is expected to tolerate duplicates.
func (t *Tracker) Reconcile(ctx context.Context) error {
	if t.uploads == nil {
		return nil
	}

	keys, err := t.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list stored keys: %w", err)
	}

	projects := make(map[string]struct{})
	total := 0
	for _, key := range keys {
		project, day, ok := storage.ParseSessionKey(key)
		if !ok {
			continue
		}

		t.mu.Lock()
		log, err := t.loadDay(ctx, project, day)
		t.mu.Unlock()
		if err != nil {
			return err
		}
		if len(log) == 0 {
			continue
		}

		if err := t.uploads.Enqueue(ctx, project, log); err != nil {
			return fmt.Errorf("enqueue %s %s: %w", project, day, err)
		}
		projects[project] = struct{}{}
		total += len(log)
	}

	t.logger.Info().
		Int("projects", len(projects)).
		Int("sessions", total).
		Msg("Reconciled stored sessions with upload queue")

	t.uploads.Trigger()
	return nil
}

// loadDay returns the cached log for project/day, reading it from storage on
// first use. Missing or malformed data yields an empty log. Must be called
// with t.mu held.
func (t *Tracker) loadDay(ctx context.Context, project, day string) ([]storage.TimeWindow, error) {
	key := storage.SessionKey(project, day)
	if log, ok := t.days[key]; ok {
		return log, nil
	}

	raw, err := t.store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		metrics.DayLogLoads.WithLabelValues("missing").Inc()
		t.days[key] = nil
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load day log %s: %w", key, err)
	}

	var log []storage.TimeWindow
	if err := json.Unmarshal(raw, &log); err != nil {
		metrics.DayLogLoads.WithLabelValues("malformed").Inc()
		t.logger.Warn().Err(err).Str("key", key).Msg("Ignoring malformed day log")
		log = nil
	} else {
		metrics.DayLogLoads.WithLabelValues("found").Inc()
	}

	t.days[key] = log
	return log, nil
}

// saveDay persists the full log and updates the cache once the write succeeds.
// Must be called with t.mu held.
func (t *Tracker) saveDay(ctx context.Context, project, day string, log []storage.TimeWindow) error {
	key := storage.SessionKey(project, day)

	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal day log %s: %w", key, err)
	}
	if err := t.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save day log %s: %w", key, err)
	}

	t.days[key] = log
	return nil
}

func (t *Tracker) dayKey(ms int64) string {
	return time.UnixMilli(ms).In(t.location).Format(storage.DayLayout)
}

// mergeable reports whether next lies within gap of last on either side.
func mergeable(last, next storage.TimeWindow, gap time.Duration) bool {
	g := gap.Milliseconds()
	return next.Start <= last.End+g && next.End >= last.Start-g
}

// splitAtUTCMidnight cuts window into pieces that each lie within one UTC
// day. A piece ending at a boundary stops 1ms short of midnight; empty
// pieces are dropped.
func splitAtUTCMidnight(window storage.TimeWindow) []storage.TimeWindow {
	var pieces []storage.TimeWindow
	for window.Valid() {
		midnight := nextUTCMidnight(window.Start)
		if window.End < midnight {
			pieces = append(pieces, window)
			break
		}
		if head := (storage.TimeWindow{Start: window.Start, End: midnight - 1}); head.Valid() {
			pieces = append(pieces, head)
		}
		window.Start = midnight
	}
	return pieces
}

// nextUTCMidnight returns the first UTC midnight strictly after ms.
func nextUTCMidnight(ms int64) int64 {
	y, m, d := time.UnixMilli(ms).UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC).UnixMilli()
}

// changedWindows returns the entries of updated that do not appear in
// previous.
func changedWindows(previous, updated []storage.TimeWindow) []storage.TimeWindow {
	seen := make(map[storage.TimeWindow]struct{}, len(previous))
	for _, w := range previous {
		seen[w] = struct{}{}
	}

	var changed []storage.TimeWindow
	for _, w := range updated {
		if _, ok := seen[w]; !ok {
			changed = append(changed, w)
		}
	}
	return changed
}
