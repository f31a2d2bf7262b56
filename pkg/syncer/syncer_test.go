package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-kb/helixd/pkg/indexstore"
)

func writeDecision(t *testing.T, repoRoot, rel, title, body string) {
	t.Helper()
	path := filepath.Join(repoRoot, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	content := "---\nid: 1\ntitle: " + title + "\nstatus: accepted\n---\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestSyncer(t *testing.T) (*Syncer, *indexstore.Store) {
	t.Helper()
	store, err := indexstore.Open(context.Background(), indexstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, Config{}, nil), store
}

func TestExecute_IndexesNewFiles(t *testing.T) {
	s, store := newTestSyncer(t)
	repoRoot := t.TempDir()

	writeDecision(t, repoRoot, ".decisions/d-001.md", "First decision", "one")
	writeDecision(t, repoRoot, ".decisions/d-002.md", "Second decision", "two")

	stats, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesScanned)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesRemoved)
	assert.Equal(t, 0, stats.FileErrors)

	n, err := store.Count(context.Background(), "decisions", repoRoot)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExecute_SkipsUnchangedFiles(t *testing.T) {
	s, _ := newTestSyncer(t)
	repoRoot := t.TempDir()
	writeDecision(t, repoRoot, ".decisions/d-001.md", "A decision", "body")

	_, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)

	stats, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesScanned)
	assert.Equal(t, 0, stats.FilesIndexed, "unchanged file must not be re-indexed")
}

func TestExecute_ReindexesChangedFiles(t *testing.T) {
	s, store := newTestSyncer(t)
	repoRoot := t.TempDir()
	writeDecision(t, repoRoot, ".decisions/d-001.md", "A decision", "body")

	_, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)

	writeDecision(t, repoRoot, ".decisions/d-001.md", "A decision, revised", "new body")

	stats, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	doc, err := store.Get(context.Background(), "decisions", repoRoot, ".decisions/d-001.md")
	require.NoError(t, err)
	assert.Equal(t, "A decision, revised", doc.Title)
}

func TestExecute_RemovesDeletedFiles(t *testing.T) {
	s, store := newTestSyncer(t)
	repoRoot := t.TempDir()
	writeDecision(t, repoRoot, ".decisions/d-001.md", "Keep", "k")
	writeDecision(t, repoRoot, ".decisions/d-002.md", "Drop", "d")

	_, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(repoRoot, ".decisions/d-002.md")))

	stats, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)

	n, err := store.Count(context.Background(), "decisions", repoRoot)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExecute_CountsParseErrorsWithoutFailing(t *testing.T) {
	s, _ := newTestSyncer(t)
	repoRoot := t.TempDir()
	writeDecision(t, repoRoot, ".decisions/good.md", "Good", "ok")
	require.NoError(t, os.WriteFile(
		filepath.Join(repoRoot, ".decisions/bad.md"),
		[]byte("no front matter here\n"), 0644))

	stats, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesScanned)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FileErrors)
}

func TestExecute_MissingDirectoryFails(t *testing.T) {
	s, _ := newTestSyncer(t)
	_, err := s.Execute(context.Background(), t.TempDir(), "decisions", ".decisions")
	require.Error(t, err)
}

func TestExecute_PatternFiltering(t *testing.T) {
	store, err := indexstore.Open(context.Background(), indexstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s := New(store, Config{
		Includes: []string{"**/*.md"},
		Excludes: []string{"drafts/**"},
	}, nil)

	repoRoot := t.TempDir()
	writeDecision(t, repoRoot, ".decisions/d-001.md", "Published", "p")
	writeDecision(t, repoRoot, ".decisions/drafts/wip.md", "Draft", "w")
	require.NoError(t, os.WriteFile(
		filepath.Join(repoRoot, ".decisions/notes.txt"), []byte("not markdown"), 0644))

	stats, err := s.Execute(context.Background(), repoRoot, "decisions", ".decisions")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesScanned, "txt and excluded draft are not scanned")
	assert.Equal(t, 1, stats.FilesIndexed)
}
