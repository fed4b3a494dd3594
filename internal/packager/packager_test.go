package packager

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestPackageExclusionRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("hello"))
	writeFile(t, root, "node_modules/b.js", []byte("module.exports = {}"))
	writeFile(t, root, "notes.log", []byte("scratch"))
	writeFile(t, root, ".env", []byte("SECRET=1"))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	require.Len(t, doc.Files, 1)
	rec, ok := doc.Files["a.txt"]
	require.True(t, ok, "a.txt must be the only packaged file")
	assert.Equal(t, ContentText, rec.ContentType)
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, int64(5), rec.Size)
	assert.Equal(t, 1, doc.Metadata.TotalFiles)
	assert.Equal(t, int64(5), doc.Metadata.TotalSize)
}

func TestPackageExcludedDirIsPruned(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", []byte("package main"))
	// Nested appearance of an excluded segment prunes the whole subtree.
	writeFile(t, root, "src/node_modules/deep/x.js", []byte("x"))
	writeFile(t, root, "src/node_modules/y.js", []byte("y"))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	assert.Len(t, doc.Files, 1)
	assert.Contains(t, doc.Files, "src/main.go")
	for rel := range doc.Files {
		assert.NotContains(t, rel, "node_modules")
	}
}

func TestPackageOversizedFileSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("hello"))
	writeFile(t, root, "big.bin", make([]byte, 2<<20))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	assert.NotContains(t, doc.Files, "big.bin")
	assert.Equal(t, 1, doc.Metadata.TotalFiles)
	assert.Equal(t, int64(5), doc.Metadata.TotalSize)
}

func TestPackageExactCeilingIncluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "edge.dat", bytes.Repeat([]byte("a"), MaxFileSize))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	rec, ok := doc.Files["edge.dat"]
	require.True(t, ok, "file at exactly 1 MiB is not oversized")
	assert.Equal(t, int64(MaxFileSize), rec.Size)
}

func TestPackageBinaryRoundTrip(t *testing.T) {
	root := t.TempDir()
	raw := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01, 0xFF, 0xFE}
	writeFile(t, root, "img.dat", raw)

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	rec := doc.Files["img.dat"]
	require.Equal(t, ContentBinary, rec.ContentType)
	decoded, err := base64.StdEncoding.DecodeString(rec.Content)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestPackageTextWithInvalidUTF8(t *testing.T) {
	root := t.TempDir()
	raw := []byte("caf\xff\xfe latte")
	writeFile(t, root, "weird.txt", raw)

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	rec := doc.Files["weird.txt"]
	assert.Equal(t, ContentText, rec.ContentType)
	assert.True(t, strings.HasPrefix(rec.Content, "caf"))
	assert.True(t, strings.HasSuffix(rec.Content, " latte"))
	assert.Contains(t, rec.Content, "�")
	// Size reflects the on-disk bytes, not the substituted string.
	assert.Equal(t, int64(len(raw)), rec.Size)
}

func TestPackageNullBeyondSniffWindowStaysText(t *testing.T) {
	root := t.TempDir()
	raw := append(bytes.Repeat([]byte("a"), sniffLen), 0x00)
	writeFile(t, root, "tail.txt", raw)

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	// Known heuristic limit: the null byte sits past the inspected prefix.
	assert.Equal(t, ContentText, doc.Files["tail.txt"].ContentType)
}

func TestPackageUnreadableFileBecomesErrorRecord(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("hello"))
	// Dangling symlink: lstat reports the 10-byte target name, the read
	// fails. Mirrors a file deleted between listing and read.
	require.NoError(t, os.Symlink("targetmiss", filepath.Join(root, "broken.txt")))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	rec, ok := doc.Files["broken.txt"]
	require.True(t, ok, "unreadable file still gets a record")
	assert.Equal(t, ContentError, rec.ContentType)
	assert.Contains(t, rec.Content, "read error")
	assert.Equal(t, int64(10), rec.Size)
	assert.Equal(t, 2, doc.Metadata.TotalFiles)
	assert.Equal(t, int64(15), doc.Metadata.TotalSize)
}

func TestPackageTotalsMatchRecords(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("aaa"))
	writeFile(t, root, "sub/b.txt", []byte("bbbbb"))
	writeFile(t, root, "sub/deeper/c.bin", []byte{0x00, 0x01})

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	var sum int64
	for _, rec := range doc.Files {
		sum += rec.Size
	}
	assert.Equal(t, len(doc.Files), doc.Metadata.TotalFiles)
	assert.Equal(t, sum, doc.Metadata.TotalSize)
}

func TestPackageMetadataDefaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("x"))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, "unknown", doc.Metadata.Repository)
	assert.Equal(t, "unknown", doc.Metadata.Branch)
	assert.Equal(t, "unknown", doc.Metadata.Commit)
	_, perr := time.Parse(time.RFC3339, doc.Metadata.Timestamp)
	assert.NoError(t, perr)
}

func TestPackageMetadataFromEnvironment(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("x"))

	doc, err := Package(Options{
		Root:       root,
		Repository: "acme/widgets",
		Branch:     "main",
		Commit:     "deadbeef",
	})
	require.NoError(t, err)

	assert.Equal(t, "acme/widgets", doc.Metadata.Repository)
	assert.Equal(t, "main", doc.Metadata.Branch)
	assert.Equal(t, "deadbeef", doc.Metadata.Commit)
}

func TestPackageInaccessibleRootIsFatal(t *testing.T) {
	_, err := Package(Options{Root: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "plain.txt", []byte("x"))
	_, err = Package(Options{Root: file})
	assert.Error(t, err)
}

func TestPackageSkipPathsExcludesArtifact(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("hello"))
	out := writeFile(t, root, "snapshot.json", []byte("{}"))

	doc, err := Package(Options{Root: root, SkipPaths: []string{out}})
	require.NoError(t, err)

	assert.NotContains(t, doc.Files, "snapshot.json")
	assert.Equal(t, 1, doc.Metadata.TotalFiles)
}

func TestPackageIsReproducible(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("hello"))
	writeFile(t, root, "sub/b.bin", []byte{0x00, 0x01, 0x02})

	first, err := Package(Options{Root: root})
	require.NoError(t, err)
	second, err := Package(Options{Root: root})
	require.NoError(t, err)

	if diff := cmp.Diff(first.Files, second.Files); diff != "" {
		t.Errorf("file mapping differs between identical runs (-first +second):\n%s", diff)
	}
}

func TestRulesFromListsNormalizesExtensions(t *testing.T) {
	r := RulesFromLists([]string{".git"}, []string{"LOG", ".PyC"}, []string{".env"})
	assert.True(t, r.Exts[".log"])
	assert.True(t, r.Exts[".pyc"])
	assert.True(t, r.Dirs[".git"])
	assert.True(t, r.Files[".env"])
}

func TestDocumentWriteFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("hello"))

	doc, err := Package(Options{Root: root})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, doc.WriteFile(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_files":1`)
	assert.Contains(t, string(data), `"a.txt"`)
}
