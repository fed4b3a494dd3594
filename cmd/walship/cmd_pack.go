package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"walship/internal/packager"
)

var packOut string

// packCmd runs the packager alone and keeps the document on disk, for
// inspecting what a deploy would upload.
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Package the tree into a snapshot document without uploading",
	Long: `Walks the configured root, applies the exclusion rules, and writes
the snapshot document to --out. Nothing is uploaded and no record is
updated; this is the dry-run half of 'walship deploy'.`,
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "out", "o", "walship-snapshot.json", "where to write the snapshot document")
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := packager.Options{
		Root:        cfg.Root,
		MaxFileSize: cfg.Exclude.MaxFileSize,
		Repository:  cfg.Repository,
		Branch:      cfg.Branch,
		Commit:      cfg.Commit,
		SkipPaths:   []string{packOut},
	}
	if len(cfg.Exclude.Dirs)+len(cfg.Exclude.Extensions)+len(cfg.Exclude.Files) > 0 {
		opts.Rules = packager.RulesFromLists(cfg.Exclude.Dirs, cfg.Exclude.Extensions, cfg.Exclude.Files)
	}

	doc, err := packager.Package(opts)
	if err != nil {
		return err
	}
	if err := doc.WriteFile(packOut); err != nil {
		return err
	}

	fmt.Printf("Packaged %d files (%d bytes) from %s -> %s\n",
		doc.Metadata.TotalFiles, doc.Metadata.TotalSize, cfg.Root, packOut)
	return nil
}
