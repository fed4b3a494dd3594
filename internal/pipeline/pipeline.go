// Package pipeline runs the full publish sequence: package the tree, write
// the transient artifact, upload the blob, extract its identifier, update
// the name record, and append the ledger row. Strictly sequential; the
// first fatal error aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walship/internal/config"
	"walship/internal/ens"
	"walship/internal/history"
	"walship/internal/packager"
	"walship/internal/walrus"
)

// Result summarizes one completed publish.
type Result struct {
	RunID      string
	BlobID     string
	TotalFiles int
	TotalSize  int64
	Duration   time.Duration
}

// Pipeline wires the packager and the two downstream clients together.
type Pipeline struct {
	cfg     *config.Config
	storage *walrus.Client
	records *ens.Client
	log     *zap.Logger
}

// New builds a pipeline from validated configuration.
func New(cfg *config.Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg: cfg,
		storage: walrus.NewClient(
			cfg.Publisher.BaseURL,
			cfg.Publisher.Token,
			cfg.Publisher.Epochs,
			config.Duration(cfg.Publisher.Timeout, 60*time.Second),
			log),
		records: ens.NewClient(
			cfg.Updater.BaseURL,
			cfg.Updater.Token,
			config.Duration(cfg.Updater.Timeout, 30*time.Second),
			log),
		log: log,
	}
}

// Run executes one publish. The artifact file is removed before returning
// regardless of outcome; only the blob and the ledger row survive the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID))

	artifact := p.cfg.Output
	if artifact == "" {
		artifact = filepath.Join(os.TempDir(), fmt.Sprintf("walship-%s.json", runID))
	}

	doc, err := p.packageTree(artifact)
	if err != nil {
		return nil, err
	}
	log.Info("tree packaged",
		zap.Int("files", doc.Metadata.TotalFiles),
		zap.Int64("bytes", doc.Metadata.TotalSize))

	data, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(artifact, data, 0644); err != nil {
		return nil, fmt.Errorf("pipeline: write artifact: %w", err)
	}
	defer func() {
		if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
			log.Warn("artifact cleanup failed", zap.String("path", artifact), zap.Error(err))
		}
	}()

	blobID, err := p.storage.Store(ctx, data)
	if err != nil {
		return nil, err
	}

	repo := doc.Metadata.Repository
	if err := p.records.Update(ctx, p.cfg.Updater.Label, repo, blobID); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      runID,
		BlobID:     blobID,
		TotalFiles: doc.Metadata.TotalFiles,
		TotalSize:  doc.Metadata.TotalSize,
		Duration:   time.Since(start),
	}
	p.recordHistory(ctx, log, doc, res)

	log.Info("publish complete",
		zap.String("blob_id", blobID),
		zap.Duration("took", res.Duration))
	return res, nil
}

// packageTree runs the packager with the configured rules, keeping the
// artifact path itself out of the snapshot.
func (p *Pipeline) packageTree(artifact string) (*packager.Document, error) {
	opts := packager.Options{
		Root:        p.cfg.Root,
		MaxFileSize: p.cfg.Exclude.MaxFileSize,
		Repository:  p.cfg.Repository,
		Branch:      p.cfg.Branch,
		Commit:      p.cfg.Commit,
		SkipPaths:   []string{artifact},
	}
	if len(p.cfg.Exclude.Dirs)+len(p.cfg.Exclude.Extensions)+len(p.cfg.Exclude.Files) > 0 {
		opts.Rules = packager.RulesFromLists(p.cfg.Exclude.Dirs, p.cfg.Exclude.Extensions, p.cfg.Exclude.Files)
	}
	return packager.Package(opts)
}

// recordHistory appends the ledger row. The blob is already published and
// the record updated, so a ledger failure is logged rather than returned.
func (p *Pipeline) recordHistory(ctx context.Context, log *zap.Logger, doc *packager.Document, res *Result) {
	if !p.cfg.History.Enabled || p.cfg.History.Path == "" {
		return
	}
	store, err := history.Open(p.cfg.History.Path)
	if err != nil {
		log.Warn("history ledger unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	err = store.Record(ctx, history.Entry{
		RunID:      res.RunID,
		Repository: doc.Metadata.Repository,
		Branch:     doc.Metadata.Branch,
		Commit:     doc.Metadata.Commit,
		BlobID:     res.BlobID,
		TotalFiles: res.TotalFiles,
		TotalSize:  res.TotalSize,
	})
	if err != nil {
		log.Warn("history record failed", zap.Error(err))
	}
}
