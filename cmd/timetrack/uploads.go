package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errUploadsDisabled = errors.New("uploads are disabled: set upload.endpoint and upload.token")

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Upload all pending sessions now",
	Args:  cobra.NoArgs,
	RunE:  runFlush,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List sessions waiting to be uploaded",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func init() {
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(pendingCmd)
}

func runFlush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := commandBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	result, err := b.Flush(ctx)
	if err != nil {
		if !errors.Is(err, errUploadsDisabled) {
			color.New(color.FgRed, color.Bold).Println("Upload failed")
		}
		return err
	}

	if result.InProgress {
		color.New(color.FgYellow, color.Bold).Print("Upload already in progress")
	} else {
		color.New(color.FgGreen, color.Bold).Print("Flushed")
	}
	fmt.Printf(" (%d session(s) still pending)\n", result.Pending)
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := commandBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	pending, err := b.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		color.New(color.FgGreen).Println("Nothing pending")
		return nil
	}

	projects := make([]string, 0, len(pending))
	for project := range pending {
		projects = append(projects, project)
	}
	sort.Strings(projects)

	loc := b.Location()
	cyan := color.New(color.FgCyan, color.Bold)
	for _, project := range projects {
		cyan.Printf("%s (%d)\n", project, len(pending[project]))
		for _, s := range pending[project] {
			fmt.Printf("  %s → %s\n",
				s.StartTime().In(loc).Format("2006-01-02 15:04:05"),
				s.EndTime().In(loc).Format("15:04:05"))
		}
	}
	return nil
}
