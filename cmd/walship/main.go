// Package main implements the walship CLI: package a repository checkout
// into a snapshot document, publish it to Walrus, and point a name-service
// record at the resulting blob.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"walship/internal/config"
)

var (
	// Global flags
	verbose  bool
	cfgPath  string
	rootDir  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "walship",
	Short: "walship - publish a codebase snapshot to Walrus",
	Long: `walship packages a repository checkout into a single JSON snapshot,
uploads it as a blob to a Walrus publisher, and forwards the resulting
content identifier to a name-record update server.

Designed to run as a single CI job step: checkout identity is read from
the GitHub Actions environment, endpoints from WALSHIP_* variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the config file (if any), applies environment
// overrides, and then the command-line --root override on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".walship.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "directory tree to package (overrides config)")

	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
