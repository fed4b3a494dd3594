// Package packager walks a repository checkout and packages every
// qualifying file into a single JSON snapshot document for upload.
package packager

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MaxFileSize is the per-file size ceiling. Files strictly larger are
	// skipped before their content is read.
	MaxFileSize = 1 << 20 // 1 MiB

	// sniffLen is how many leading bytes the binary heuristic inspects.
	sniffLen = 1024

	// fallbackMimeType is stored when the extension gives no better guess.
	fallbackMimeType = "application/octet-stream"
)

// Content classifications stored in FileRecord.ContentType.
const (
	ContentText   = "text"
	ContentBinary = "binary"
	ContentError  = "error"
)

// Rules holds the static exclusion sets applied to every candidate path.
type Rules struct {
	// Dirs are directory names pruned from descent wherever they appear
	// as a path segment (e.g. "node_modules" anywhere in the tree).
	Dirs map[string]bool
	// Exts are lowercased file extensions (with dot) to skip.
	Exts map[string]bool
	// Files are exact base filenames to skip.
	Files map[string]bool
}

// DefaultRules returns the exclusion sets used when no configuration
// overrides them: VCS and dependency directories, build droppings, and
// secrets files that must never end up in a public blob.
func DefaultRules() Rules {
	return Rules{
		Dirs: map[string]bool{
			".git": true, ".hg": true, ".svn": true,
			"node_modules": true, "__pycache__": true,
			".venv": true, "venv": true,
			"dist": true, "build": true, ".cache": true,
		},
		Exts: map[string]bool{
			".pyc": true, ".log": true, ".tmp": true, ".swp": true,
		},
		Files: map[string]bool{
			".env": true, ".DS_Store": true, "Thumbs.db": true,
		},
	}
}

// RulesFromLists builds Rules from configuration slices. Extensions are
// lowercased and get a leading dot if missing.
func RulesFromLists(dirs, exts, files []string) Rules {
	r := Rules{
		Dirs:  make(map[string]bool, len(dirs)),
		Exts:  make(map[string]bool, len(exts)),
		Files: make(map[string]bool, len(files)),
	}
	for _, d := range dirs {
		r.Dirs[d] = true
	}
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		r.Exts[e] = true
	}
	for _, f := range files {
		r.Files[f] = true
	}
	return r
}

// Options configures a single packaging run.
type Options struct {
	// Root is the directory tree to package. Must be an accessible
	// directory; anything else is fatal.
	Root string

	// Rules are the exclusion sets. Zero value means DefaultRules.
	Rules Rules

	// MaxFileSize overrides the 1 MiB ceiling when > 0.
	MaxFileSize int64

	// Repository, Branch and Commit identify the checkout. They come from
	// the invoking environment, not from the tree; empty values are
	// recorded as "unknown".
	Repository string
	Branch     string
	Commit     string

	// SkipPaths are absolute file paths excluded from the walk, used to
	// keep the output artifact out of its own snapshot.
	SkipPaths []string
}

// Metadata is the aggregate header of a snapshot document.
type Metadata struct {
	Timestamp  string `json:"timestamp"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	TotalFiles int    `json:"total_files"`
	TotalSize  int64  `json:"total_size"`
}

// FileRecord is one packaged file. Created once per qualifying file and
// never mutated afterwards.
type FileRecord struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
}

// Document pairs run metadata with the relative-path -> record mapping.
// Key order carries no meaning; consumers must not rely on it.
type Document struct {
	Metadata Metadata              `json:"metadata"`
	Files    map[string]FileRecord `json:"files"`
}

// Package walks opts.Root and returns the snapshot document.
//
// Per-file read failures become "error" records and never abort the walk.
// An unreadable root is the only traversal failure that is fatal.
func Package(opts Options) (*Document, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("packager: cannot access root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("packager: root is not a directory: %s", root)
	}

	rules := opts.Rules
	if rules.Dirs == nil && rules.Exts == nil && rules.Files == nil {
		rules = DefaultRules()
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}

	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		if abs, err := filepath.Abs(p); err == nil {
			skip[abs] = true
		}
	}

	doc := &Document{
		Metadata: Metadata{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Repository: orUnknown(opts.Repository),
			Branch:     orUnknown(opts.Branch),
			Commit:     orUnknown(opts.Commit),
		},
		Files: make(map[string]FileRecord),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectory: skip it, keep walking.
			return nil
		}
		if d.IsDir() {
			if path != root && rules.Dirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if rules.Files[name] || rules.Exts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if abs, aerr := filepath.Abs(path); aerr == nil && skip[abs] {
			return nil
		}

		fi, serr := d.Info()
		if serr != nil {
			// Entry vanished between listing and stat. Without a size we
			// cannot apply the ceiling, so record the failure with size 0.
			accept(doc, relPath(root, path), errorRecord(serr, 0, time.Now().UTC()))
			return nil
		}
		if fi.Size() > maxSize {
			return nil
		}

		accept(doc, relPath(root, path), readRecord(path, fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("packager: walk failed: %w", err)
	}
	return doc, nil
}

// readRecord reads one candidate file and classifies its content. The stat
// info was taken before the read; its size stands even when the read fails.
func readRecord(path string, fi fs.FileInfo) FileRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		return errorRecord(err, fi.Size(), fi.ModTime())
	}

	rec := FileRecord{
		MimeType: guessMimeType(path),
		Size:     fi.Size(),
		Modified: fi.ModTime().UTC().Format(time.RFC3339),
	}
	if isBinary(data) {
		rec.ContentType = ContentBinary
		rec.Content = base64.StdEncoding.EncodeToString(data)
	} else {
		rec.ContentType = ContentText
		rec.Content = strings.ToValidUTF8(string(data), "�")
	}
	return rec
}

// isBinary reports whether the content looks binary: a null byte anywhere
// in the first 1024 bytes. Null bytes past the prefix do not reclassify;
// the heuristic is kept as-is for output compatibility.
func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func errorRecord(err error, size int64, modified time.Time) FileRecord {
	return FileRecord{
		Content:     fmt.Sprintf("<read error: %v>", err),
		ContentType: ContentError,
		MimeType:    fallbackMimeType,
		Size:        size,
		Modified:    modified.UTC().Format(time.RFC3339),
	}
}

// accept stores a record and bumps the running totals exactly once.
func accept(doc *Document, rel string, rec FileRecord) {
	doc.Files[rel] = rec
	doc.Metadata.TotalFiles++
	doc.Metadata.TotalSize += rec.Size
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func guessMimeType(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return fallbackMimeType
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Marshal serializes the document for upload or for the pack artifact.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("packager: serialize document: %w", err)
	}
	return data, nil
}

// WriteFile serializes the document and writes it to path. A write failure
// here is fatal to the run.
func (d *Document) WriteFile(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("packager: write document: %w", err)
	}
	return nil
}
