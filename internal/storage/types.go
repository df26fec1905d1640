package storage

import (
	"fmt"
	"strings"
	"time"
)

const (
	// SessionNamespace prefixes every per-day session log key.
	SessionNamespace = "sessions"

	// PendingUploadsKey holds the pending upload map for all projects.
	PendingUploadsKey = "pendingUploads"

	// DayLayout is the day-key format.
	DayLayout = "2006-01-02"
)

// TimeWindow is a contiguous interval of tracked activity in epoch milliseconds.
type TimeWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Valid reports whether the window has a positive length.
func (w TimeWindow) Valid() bool {
	return w.Start < w.End
}

// Duration returns the window length, or zero for an invalid window.
func (w TimeWindow) Duration() time.Duration {
	if !w.Valid() {
		return 0
	}
	return time.Duration(w.End-w.Start) * time.Millisecond
}

// StartTime returns the window start as a UTC time.
func (w TimeWindow) StartTime() time.Time {
	return time.UnixMilli(w.Start).UTC()
}

// EndTime returns the window end as a UTC time.
func (w TimeWindow) EndTime() time.Time {
	return time.UnixMilli(w.End).UTC()
}

// String implements fmt.Stringer.
func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.StartTime().Format(time.RFC3339Nano), w.EndTime().Format(time.RFC3339Nano))
}

// WindowOf builds a TimeWindow from two times.
func WindowOf(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start.UnixMilli(), End: end.UnixMilli()}
}

// SessionKey returns the key under which a project's log for day is stored.
func SessionKey(project, day string) string {
	return SessionNamespace + "." + project + "." + day
}

// ParseSessionKey splits a session key into project and day. The project may
// itself contain dots; the day is always the final segment.
func ParseSessionKey(key string) (project, day string, ok bool) {
	rest, found := strings.CutPrefix(key, SessionNamespace+".")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ".")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	project, day = rest[:idx], rest[idx+1:]
	if _, err := time.Parse(DayLayout, day); err != nil {
		return "", "", false
	}
	return project, day, true
}
