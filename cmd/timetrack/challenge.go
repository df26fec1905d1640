package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/timetrack/internal/upload"
	"github.com/spf13/cobra"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge PROJECT",
	Short: "Show the active challenge for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallenge,
}

func init() {
	rootCmd.AddCommand(challengeCmd)
}

func runChallenge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Only the remote endpoint is involved, so the store is left alone
	cfg, _, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	if !cfg.Upload.Enabled() {
		return errUploadsDisabled
	}
	loc, err := cfg.Tracking.Location()
	if err != nil {
		return err
	}

	timeout := parseDuration(cfg.Upload.RequestTimeout, upload.DefaultRequestTimeout)
	client := upload.NewClient(cfg.Upload.Endpoint, cfg.Upload.Token, timeout)

	challenge, err := client.FetchChallenge(ctx, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println(challenge.Title)
	if challenge.Description != "" {
		fmt.Println(challenge.Description)
	}
	fmt.Printf("ID:      %s\n", challenge.ID)

	expires := challenge.ExpiresAt.In(loc).Format("2006-01-02 15:04 MST")
	if challenge.Expired(time.Now()) {
		color.New(color.FgRed).Printf("Expired: %s\n", expires)
	} else {
		fmt.Printf("Expires: %s\n", expires)
	}
	return nil
}
