package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/timetrack/internal/storage"
	"github.com/spf13/cobra"
)

var (
	recordStart    string
	recordEnd      string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] PROJECT",
	Short: "Record an activity session",
	Long: `Record one activity session for a project. Give either --start and --end,
or --duration for a session ending now (or at --end).`,
	Example: `  timetrack record github.com/acme/widgets --start "2024-01-15 09:00" --end "2024-01-15 10:30"
  timetrack record github.com/acme/widgets --duration 25m`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordStart, "start", "", "Session start (RFC 3339 or local \"YYYY-MM-DD HH:MM\")")
	recordCmd.Flags().StringVar(&recordEnd, "end", "", "Session end; defaults to now")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Session length, used when --start is omitted")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	project := args[0]
	ctx := context.Background()

	b, err := commandBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	loc := b.Location()
	window, err := sessionWindow(loc, time.Now())
	if err != nil {
		return err
	}
	if !window.Valid() {
		return fmt.Errorf("session end must be after its start")
	}

	if err := b.RecordSession(ctx, window, project); err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Print("Recorded ")
	fmt.Printf("%s for %s\n", window.Duration().Round(time.Second), project)
	fmt.Printf("  %s → %s\n",
		window.StartTime().In(loc).Format("2006-01-02 15:04:05 MST"),
		window.EndTime().In(loc).Format("2006-01-02 15:04:05 MST"))

	if pending, err := b.Pending(ctx); err == nil {
		if n := len(pending[project]); n > 0 {
			color.New(color.FgYellow).Printf("  %d session(s) awaiting upload\n", n)
		}
	}

	return nil
}

// sessionWindow resolves the record flags into a window.
func sessionWindow(loc *time.Location, now time.Time) (storage.TimeWindow, error) {
	end := now
	if recordEnd != "" {
		t, err := parseTime(recordEnd, loc)
		if err != nil {
			return storage.TimeWindow{}, err
		}
		end = t
	}

	switch {
	case recordStart != "":
		start, err := parseTime(recordStart, loc)
		if err != nil {
			return storage.TimeWindow{}, err
		}
		return storage.WindowOf(start, end), nil
	case recordDuration > 0:
		return storage.WindowOf(end.Add(-recordDuration), end), nil
	default:
		return storage.TimeWindow{}, errors.New("either --start or --duration is required")
	}
}
