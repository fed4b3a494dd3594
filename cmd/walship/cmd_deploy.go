package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"walship/internal/pipeline"
)

// deployCmd runs the full publish sequence. This is the CI entry point.
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Package, upload to Walrus, and update the name record",
	Long: `Runs the full pipeline:
  1. Package the tree into a snapshot document
  2. Upload the document to the Walrus publisher
  3. Extract the blob identifier from the publisher response
  4. Point the name-service record at the blob
  5. Append the publish to the local history ledger

Any step failing aborts the run with a non-zero exit. There are no
retries; a failed run is simply re-run by the next push.`,
	RunE: runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
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
	go func() {
		<-sigCh
		fmt.Println("\nDeploy cancelled")
		cancel()
	}()

	res, err := pipeline.New(cfg, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Published %d files (%d bytes) as blob %s in %s\n",
		res.TotalFiles, res.TotalSize, res.BlobID, res.Duration.Round(time.Millisecond))
	return nil
}
