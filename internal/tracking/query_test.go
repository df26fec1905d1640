package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/goodtune/timetrack/internal/storage"
	"github.com/goodtune/timetrack/internal/storage/memory"
)

func TestSeparateTime(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want Breakdown
	}{
		{"zero", 0, Breakdown{}},
		{"sub-second truncates", 999 * time.Millisecond, Breakdown{}},
		{"seconds", 59*time.Second + 999*time.Millisecond, Breakdown{Seconds: 59}},
		{"minute rollover", 60 * time.Second, Breakdown{Minutes: 1}},
		{"mixed", time.Hour + 2*time.Minute + 3*time.Second + 400*time.Millisecond, Breakdown{Hours: 1, Minutes: 2, Seconds: 3}},
		{"hours do not roll into days", 49*time.Hour + 59*time.Minute, Breakdown{Hours: 49, Minutes: 59}},
		{"negative clamps", -time.Minute, Breakdown{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeparateTime(tt.in); got != tt.want {
				t.Errorf("SeparateTime(%v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSeparateTimeRecomposes(t *testing.T) {
	for ms := int64(0); ms < 200*int64(time.Hour/time.Millisecond); ms += 7_919_113 {
		d := time.Duration(ms) * time.Millisecond
		b := SeparateTime(d)
		if b.Hours*3600+b.Minutes*60+b.Seconds != ms/1000 {
			t.Fatalf("SeparateTime(%v) = %+v does not recompose to %d seconds", d, b, ms/1000)
		}
		if b.Minutes < 0 || b.Minutes >= 60 || b.Seconds < 0 || b.Seconds >= 60 {
			t.Fatalf("SeparateTime(%v) = %+v out of range", d, b)
		}
	}
}

func TestBreakdownString(t *testing.T) {
	if got := (Breakdown{Hours: 12, Minutes: 3, Seconds: 9}).String(); got != "12h 03m 09s" {
		t.Errorf("String() = %q", got)
	}
}

func TestTimeInWindow_Empty(t *testing.T) {
	tracker := newTestTracker(t, memory.New(), Config{})
	got, err := tracker.TimeInWindow(context.Background(),
		window(at(t, "2024-01-15T00:00:00Z"), at(t, "2024-01-20T00:00:00Z")), testProject)
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if got != 0 {
		t.Errorf("TimeInWindow() = %v, want 0", got)
	}
}

func TestTimeInWindow_OverlappingRecordsReturnUnion(t *testing.T) {
	tracker := newTestTracker(t, memory.New(), Config{})
	ctx := context.Background()
	base := at(t, "2024-01-15T08:00:00Z")

	_ = tracker.RecordSession(ctx, window(base, base.Add(2*time.Hour)), testProject)
	_ = tracker.RecordSession(ctx, window(base.Add(time.Hour), base.Add(3*time.Hour)), testProject)

	got, err := tracker.TimeInWindow(ctx, window(base.Add(-time.Hour), base.Add(4*time.Hour)), testProject)
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if got != 3*time.Hour {
		t.Errorf("TimeInWindow() = %v, want 3h", got)
	}
}

func TestTimeInWindow_ClipsToWindow(t *testing.T) {
	tracker := newTestTracker(t, memory.New(), Config{})
	ctx := context.Background()
	base := at(t, "2024-01-15T08:00:00Z")

	_ = tracker.RecordSession(ctx, window(base, base.Add(2*time.Hour)), testProject)

	tests := []struct {
		name  string
		query storage.TimeWindow
		want  time.Duration
	}{
		{"inside", window(base.Add(30*time.Minute), base.Add(90*time.Minute)), time.Hour},
		{"leading edge", window(base.Add(-time.Hour), base.Add(15*time.Minute)), 15 * time.Minute},
		{"trailing edge", window(base.Add(105*time.Minute), base.Add(5*time.Hour)), 15 * time.Minute},
		{"touching end", window(base.Add(2*time.Hour), base.Add(3*time.Hour)), 0},
		{"before", window(base.Add(-3*time.Hour), base.Add(-time.Hour)), 0},
		{"degenerate", window(base.Add(time.Hour), base.Add(time.Hour)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tracker.TimeInWindow(ctx, tt.query, testProject)
			if err != nil {
				t.Fatalf("TimeInWindow() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TimeInWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeInWindow_StoredOverlapsCountedIndependently(t *testing.T) {
	tracker := newTestTracker(t, memory.New(), Config{})
	ctx := context.Background()

	a := window(at(t, "2024-01-15T08:00:00Z"), at(t, "2024-01-15T09:00:00Z"))
	b := window(at(t, "2024-01-15T11:00:00Z"), at(t, "2024-01-15T12:00:00Z"))
	// Out of order: overlaps a but is only compared with the tail b
	c := window(at(t, "2024-01-15T08:30:00Z"), at(t, "2024-01-15T08:50:00Z"))
	for _, w := range []storage.TimeWindow{a, b, c} {
		_ = tracker.RecordSession(ctx, w, testProject)
	}

	got, err := tracker.TimeInWindow(ctx, tracker.DayWindow(a.StartTime()), testProject)
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if want := 2*time.Hour + 20*time.Minute; got != want {
		t.Errorf("TimeInWindow() = %v, want %v", got, want)
	}
}

func TestTimeInWindow_SeparatesProjects(t *testing.T) {
	tracker := newTestTracker(t, memory.New(), Config{})
	ctx := context.Background()
	base := at(t, "2024-01-15T08:00:00Z")

	_ = tracker.RecordSession(ctx, window(base, base.Add(time.Hour)), "alpha")
	_ = tracker.RecordSession(ctx, window(base, base.Add(2*time.Hour)), "beta")

	got, err := tracker.TimeInWindow(ctx, tracker.DayWindow(base), "alpha")
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if got != time.Hour {
		t.Errorf("alpha total = %v, want 1h", got)
	}
}

func TestTimeInWindow_MultiDayWindow(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	seed := map[string]storage.TimeWindow{
		"2024-01-10": window(at(t, "2024-01-10T09:00:00Z"), at(t, "2024-01-10T10:00:00Z")),
		"2024-01-12": window(at(t, "2024-01-12T09:00:00Z"), at(t, "2024-01-12T11:00:00Z")),
		"2024-01-14": window(at(t, "2024-01-14T09:00:00Z"), at(t, "2024-01-14T12:00:00Z")),
	}
	for day, w := range seed {
		data, _ := json.Marshal([]storage.TimeWindow{w})
		_ = store.Set(ctx, storage.SessionKey(testProject, day), data)
	}

	tracker := newTestTracker(t, store, Config{})
	got, err := tracker.TimeInWindow(ctx, window(at(t, "2024-01-10T09:30:00Z"), at(t, "2024-01-14T10:00:00Z")), testProject)
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if want := 30*time.Minute + 2*time.Hour + time.Hour; got != want {
		t.Errorf("TimeInWindow() = %v, want %v", got, want)
	}
}

func TestTimeInWindow_EasternBusinessDayAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	tracker := newTestTracker(t, memory.New(), Config{Location: ny})
	ctx := context.Background()

	// 23:00-01:00 Eastern around the 2024 spring-forward night
	session := window(
		time.Date(2024, 3, 9, 23, 0, 0, 0, ny),
		time.Date(2024, 3, 10, 1, 0, 0, 0, ny),
	)
	if err := tracker.RecordSession(ctx, session, testProject); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}

	query := window(
		time.Date(2024, 3, 9, 0, 0, 0, 0, ny),
		time.Date(2024, 3, 10, 23, 59, 59, 999_000_000, ny),
	)
	got, err := tracker.TimeInWindow(ctx, query, testProject)
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if got != 2*time.Hour {
		t.Errorf("TimeInWindow() = %v, want exactly 2h", got)
	}
}

func TestTimeInWindow_UTCMidnightSessionUnderEasternZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	store := memory.New()
	tracker := newTestTracker(t, store, Config{Location: ny})
	ctx := context.Background()

	// 23:00-01:00 UTC is 18:00-20:00 Eastern: both split pieces file under
	// the same local day and the tail merge joins them again.
	session := window(at(t, "2024-01-15T23:00:00Z"), at(t, "2024-01-16T01:00:00Z"))
	if err := tracker.RecordSession(ctx, session, testProject); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}

	stored := storedLog(t, store, testProject, "2024-01-15")
	if len(stored) != 1 || stored[0] != session {
		t.Fatalf("stored log = %v, want single entry %v", stored, session)
	}
	if got := storedLog(t, store, testProject, "2024-01-16"); len(got) != 0 {
		t.Errorf("2024-01-16 log = %v, want empty", got)
	}

	got, err := tracker.TimeInWindow(ctx, session, testProject)
	if err != nil {
		t.Fatalf("TimeInWindow() error = %v", err)
	}
	if got != 2*time.Hour {
		t.Errorf("TimeInWindow() = %v, want exactly 2h", got)
	}

	// A window starting on the next local day still sees the tail hour
	late := window(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC))
	if got, _ := tracker.TimeInWindow(ctx, late, testProject); got != time.Hour {
		t.Errorf("TimeInWindow(after UTC midnight) = %v, want 1h", got)
	}
}

func TestTodayTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	clock := &TestClock{CurrentTime: time.Date(2024, 3, 10, 12, 0, 0, 0, ny)}
	tracker := newTestTracker(t, memory.New(), Config{Location: ny, Clock: clock})
	ctx := context.Background()

	// Keyed under the 9th but running one hour into the 10th
	_ = tracker.RecordSession(ctx, window(
		time.Date(2024, 3, 9, 23, 0, 0, 0, ny),
		time.Date(2024, 3, 10, 1, 0, 0, 0, ny),
	), testProject)
	_ = tracker.RecordSession(ctx, window(
		time.Date(2024, 3, 10, 9, 0, 0, 0, ny),
		time.Date(2024, 3, 10, 9, 45, 0, 0, ny),
	), testProject)

	got, err := tracker.TodayTime(ctx, testProject)
	if err != nil {
		t.Fatalf("TodayTime() error = %v", err)
	}
	if want := time.Hour + 45*time.Minute; got != want {
		t.Errorf("TodayTime() = %v, want %v", got, want)
	}

	clock.Advance(24 * time.Hour)
	got, err = tracker.TodayTime(ctx, testProject)
	if err != nil {
		t.Fatalf("TodayTime() next day error = %v", err)
	}
	if got != 0 {
		t.Errorf("TodayTime() next day = %v, want 0", got)
	}
}

func TestDayWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	tracker := newTestTracker(t, memory.New(), Config{Location: ny})

	// The spring-forward day is 23 hours long
	w := tracker.DayWindow(time.Date(2024, 3, 10, 15, 0, 0, 0, ny))
	if got := w.Duration(); got != 23*time.Hour-time.Millisecond {
		t.Errorf("DayWindow duration = %v, want 23h minus 1ms", got)
	}
	if start := w.StartTime().In(ny); start.Hour() != 0 || start.Day() != 10 {
		t.Errorf("DayWindow start = %v", start)
	}
}

func TestTouchedDays(t *testing.T) {
	tracker := newTestTracker(t, memory.New(), Config{})

	got := tracker.touchedDays(window(at(t, "2024-02-28T12:00:00Z"), at(t, "2024-03-01T11:00:00Z")))
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}
	if len(got) != len(want) {
		t.Fatalf("touchedDays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("day %d = %s, want %s", i, got[i], want[i])
		}
	}
}
