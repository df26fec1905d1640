package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/timetrack/internal/storage"
	"github.com/goodtune/timetrack/internal/tracking"
	"github.com/spf13/cobra"
)

var (
	queryStart string
	queryEnd   string
	logDay     string
)

var todayCmd = &cobra.Command{
	Use:   "today PROJECT",
	Short: "Show time tracked today",
	Args:  cobra.ExactArgs(1),
	RunE:  runToday,
}

var queryCmd = &cobra.Command{
	Use:   "query [flags] PROJECT",
	Short: "Show time tracked inside a window",
	Example: `  timetrack query github.com/acme/widgets --start 2024-01-01 --end "2024-01-31 23:59:59"
  timetrack query github.com/acme/widgets --start 2024-01-15T09:00:00Z --end 2024-01-15T17:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var logCmd = &cobra.Command{
	Use:   "log [flags] PROJECT",
	Short: "List the stored sessions of one day",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

func init() {
	queryCmd.Flags().StringVar(&queryStart, "start", "", "Window start (required)")
	queryCmd.Flags().StringVar(&queryEnd, "end", "", "Window end; defaults to now")
	_ = queryCmd.MarkFlagRequired("start")

	logCmd.Flags().StringVar(&logDay, "day", "", "Day as YYYY-MM-DD; defaults to today")

	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(logCmd)
}

func runToday(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := commandBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	total, today, err := b.TodayTime(ctx, args[0])
	if err != nil {
		return err
	}

	printTotal(args[0], today, b.Location(), total)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := commandBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	loc := b.Location()
	start, err := parseTime(queryStart, loc)
	if err != nil {
		return err
	}
	end := time.Now()
	if queryEnd != "" {
		if end, err = parseTime(queryEnd, loc); err != nil {
			return err
		}
	}

	window := storage.WindowOf(start, end)
	total, err := b.TimeInWindow(ctx, window, args[0])
	if err != nil {
		return err
	}

	printTotal(args[0], window, loc, total)
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := commandBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	loc := b.Location()
	day := logDay
	if day == "" {
		day = time.Now().In(loc).Format(storage.DayLayout)
	}

	sessions, err := b.DayLog(ctx, args[0], day)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("%s  %s\n", args[0], day)

	if len(sessions) == 0 {
		color.New(color.FgYellow).Println("  no sessions recorded")
		return nil
	}

	var total time.Duration
	for i, s := range sessions {
		fmt.Printf("  %2d. %s - %s  %s\n", i+1,
			s.StartTime().In(loc).Format("15:04:05"),
			s.EndTime().In(loc).Format("15:04:05"),
			tracking.SeparateTime(s.Duration()))
		total += s.Duration()
	}
	fmt.Println()
	cyan.Print("  Total: ")
	fmt.Println(tracking.SeparateTime(total))

	return nil
}

func printTotal(project string, window storage.TimeWindow, loc *time.Location, total time.Duration) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Printf("Project: %s\n", project)
	fmt.Printf("Window:  %s → %s\n",
		window.StartTime().In(loc).Format("2006-01-02 15:04:05 MST"),
		window.EndTime().In(loc).Format("2006-01-02 15:04:05 MST"))
	cyan.Print("Tracked: ")
	green.Println(tracking.SeparateTime(total))
}
