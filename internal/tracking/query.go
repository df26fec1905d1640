package tracking

import (
	"context"
	"time"

	"github.com/goodtune/timetrack/internal/storage"
)

// TimeInWindow returns the tracked time for project that falls inside window
// (both ends inclusive). Each stored session contributes its overlap with the
// window; stored sessions that overlap each other are counted independently.
func (t *Tracker) TimeInWindow(ctx context.Context, window storage.TimeWindow, project string) (time.Duration, error) {
	if !window.Valid() {
		return 0, nil
	}

	days := t.touchedDays(window)

	t.mu.Lock()
	defer t.mu.Unlock()

	var total int64
	for _, day := range days {
		log, err := t.loadDay(ctx, project, day)
		if err != nil {
			return 0, err
		}
		for _, session := range log {
			total += overlap(session, window)
		}
	}

	return time.Duration(total) * time.Millisecond, nil
}

// TodayTime returns the tracked time for project between local midnight and
// 23:59:59.999 of the current day in the tracker's timezone.
func (t *Tracker) TodayTime(ctx context.Context, project string) (time.Duration, error) {
	return t.TimeInWindow(ctx, t.Today(), project)
}

// Today returns the window covering the current local day.
func (t *Tracker) Today() storage.TimeWindow {
	return t.DayWindow(t.clock.Now())
}

// DayWindow returns the window covering the local day containing ts.
func (t *Tracker) DayWindow(ts time.Time) storage.TimeWindow {
	local := ts.In(t.location)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.location)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return storage.WindowOf(start, end)
}

// touchedDays lists the day keys whose logs may hold sessions overlapping
// window. Every piece filed under a day starts on that day and ends within
// 24h, so an entry keyed two or more days before window.start ends before
// it; the walk therefore begins one day early. Days are enumerated by
// calendar date, which keeps the count proportional to the span across DST
// changes.
func (t *Tracker) touchedDays(window storage.TimeWindow) []string {
	first := time.UnixMilli(window.Start).In(t.location).AddDate(0, 0, -1)
	last := time.UnixMilli(window.End).In(t.location)

	y, m, d := first.Date()
	cur := time.Date(y, m, d, 0, 0, 0, 0, t.location)
	ly, lm, ld := last.Date()
	end := time.Date(ly, lm, ld, 0, 0, 0, 0, t.location)

	var days []string
	for !cur.After(end) {
		days = append(days, cur.Format(storage.DayLayout))
		y, m, d = cur.Date()
		cur = time.Date(y, m, d+1, 0, 0, 0, 0, t.location)
	}
	return days
}

// overlap returns the milliseconds shared by session and window, or zero.
func overlap(session, window storage.TimeWindow) int64 {
	start := max(session.Start, window.Start)
	end := min(session.End, window.End)
	if start >= end {
		return 0
	}
	return end - start
}
