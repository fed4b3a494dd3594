package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"walship/internal/history"
)

var historyLimit int

// historyCmd lists the local publish ledger.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent publishes from the local ledger",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history ledger is not configured")
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No publishes recorded yet.")
		return nil
	}

	fmt.Printf("%-20s  %-12s  %-10s  %8s  %12s  %s\n",
		"WHEN", "COMMIT", "BRANCH", "FILES", "BYTES", "BLOB")
	for _, e := range entries {
		commit := e.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Printf("%-20s  %-12s  %-10s  %8d  %12d  %s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			commit, e.Branch, e.TotalFiles, e.TotalSize, e.BlobID)
	}
	return nil
}
