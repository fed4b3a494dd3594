package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"walship/internal/config"
	"walship/internal/packager"
	"walship/internal/pipeline"
	"walship/internal/watch"
)

// watchCmd keeps publishing while the tree changes. Useful outside CI,
// e.g. keeping a staging name record current during local work.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the tree and re-publish after each settled change",
	Long: `Watches the configured root for filesystem changes. Once the tree
has been quiet for the debounce window, a full deploy runs: every
trigger is a complete repack and upload, never an incremental one.

A failed publish is logged and watching continues; stop with Ctrl-C.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	pipe := pipeline.New(cfg, logger)

	// One publish at a time: triggers that land mid-publish are dropped,
	// the next settled burst will repack everything anyway.
	sem := semaphore.NewWeighted(1)
	trigger := func() {
		if !sem.TryAcquire(1) {
			logger.Info("publish already in progress, skipping trigger")
			return
		}
		go func() {
			defer sem.Release(1)
			if res, err := pipe.Run(ctx); err != nil {
				logger.Error("publish failed", zap.Error(err))
			} else {
				logger.Info("publish succeeded", zap.String("blob_id", res.BlobID))
			}
		}()
	}

	w, err := watch.New(cfg.Root, watchRules(cfg), config.Duration(cfg.Watch.Debounce, 0), trigger, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.Root)
	<-sigCh
	fmt.Println("\nStopping watch")
	return nil
}

func watchRules(cfg *config.Config) packager.Rules {
	if len(cfg.Exclude.Dirs)+len(cfg.Exclude.Extensions)+len(cfg.Exclude.Files) > 0 {
		return packager.RulesFromLists(cfg.Exclude.Dirs, cfg.Exclude.Extensions, cfg.Exclude.Files)
	}
	return packager.DefaultRules()
}
