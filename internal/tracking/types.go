package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/timetrack/internal/storage"
)

// DefaultMergeGap is the largest gap between two sessions that still counts
// as continuous activity.
const DefaultMergeGap = 5 * time.Minute

// Config holds tracker configuration
type Config struct {
	// Location keys day logs and bounds "today". Defaults to UTC.
	Location *time.Location
	// MergeGap defaults to DefaultMergeGap.
	MergeGap time.Duration
	// Clock defaults to RealClock.
	Clock Clock
	// Uploads receives newly stored sessions. Nil keeps tracking local.
	Uploads Enqueuer
}

// Clock supplies the instant that decides which local day TodayTime
// reports. Recording and window queries never read it.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TestClock pins TodayTime to CurrentTime until moved with Advance.
type TestClock struct {
	CurrentTime time.Time
}

func (c *TestClock) Now() time.Time { return c.CurrentTime }

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) { c.CurrentTime = c.CurrentTime.Add(d) }

// Enqueuer accepts session deltas owed to the remote sink.
type Enqueuer interface {
	Enqueue(ctx context.Context, project string, sessions []storage.TimeWindow) error
	// Trigger starts a background drain without waiting for it.
	Trigger()
}

// Breakdown is a duration split into whole hours, minutes and seconds.
type Breakdown struct {
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// String formats the breakdown as "1h 02m 03s".
func (b Breakdown) String() string {
	return fmt.Sprintf("%dh %02dm %02ds", b.Hours, b.Minutes, b.Seconds)
}

// SeparateTime truncates d to whole seconds and splits it into hours,
// minutes and seconds. Negative durations yield a zero breakdown.
func SeparateTime(d time.Duration) Breakdown {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	return Breakdown{
		Hours:   total / 3600,
		Minutes: total % 3600 / 60,
		Seconds: total % 60,
	}
}
