// Package syncer implements the default sync executor: it scans a
// directory of decision records inside a repository, re-indexes the
// files whose content changed, and removes index rows for files that no
// longer exist.
package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/helix-kb/helixd/pkg/decision"
	"github.com/helix-kb/helixd/pkg/indexstore"
	"github.com/helix-kb/helixd/pkg/syncqueue"
)

// Config controls which files a sync considers.
type Config struct {
	// Includes are doublestar patterns, relative to the sync directory,
	// that files must match. Defaults to DefaultIncludes when empty.
	Includes []string

	// Excludes are patterns that files must not match.
	Excludes []string
}

// DefaultIncludes matches the markdown decision records the helix tools
// produce.
var DefaultIncludes = []string{"**/*.md"}

// Syncer scans and indexes decision directories. It implements
// syncqueue.Executor.
type Syncer struct {
	store    *indexstore.Store
	includes []string
	excludes []string
	log      *zap.Logger
}

// New creates a syncer writing to store. A nil logger is replaced with a
// no-op logger.
func New(store *indexstore.Store, cfg Config, log *zap.Logger) *Syncer {
	includes := cfg.Includes
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		store:    store,
		includes: includes,
		excludes: cfg.Excludes,
		log:      log,
	}
}

// Execute performs one sync of repoRoot/directory for the given tool.
//
// Per-file parse failures are counted and logged but do not fail the
// sync; a walk or store failure does. Exactly one terminal outcome is
// reported per invocation.
func (s *Syncer) Execute(ctx context.Context, repoRoot, tool, directory string) (*syncqueue.Stats, error) {
	start := time.Now()
	stats := &syncqueue.Stats{}

	root := filepath.Join(repoRoot, directory)
	known, err := s.store.Hashes(ctx, tool, repoRoot, directory)
	if err != nil {
		return nil, fmt.Errorf("load index hashes: %w", err)
	}

	var changed []indexstore.Document
	seen := make(map[string]bool, len(known))

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !s.match(rel) {
			return nil
		}

		stats.FilesScanned++
		key := filepath.ToSlash(filepath.Join(directory, rel))
		seen[key] = true

		doc, err := decision.ParseFile(path)
		if err != nil {
			stats.FileErrors++
			s.log.Warn("skipping unparseable file",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}

		if known[key] == doc.ContentHash {
			return nil
		}

		changed = append(changed, indexstore.Document{
			Tool:        tool,
			RepoRoot:    repoRoot,
			Path:        key,
			DocID:       doc.Metadata.ID,
			Title:       doc.Metadata.Title,
			Status:      string(doc.Metadata.Status),
			Date:        doc.Metadata.Date,
			Tags:        doc.Metadata.Tags,
			ContentHash: doc.ContentHash,
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("sync directory does not exist: %s", root)
		}
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	if err := s.store.UpsertDocuments(ctx, changed); err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}
	stats.FilesIndexed = len(changed)

	var removed []string
	for path := range known {
		if !seen[path] {
			removed = append(removed, path)
		}
	}
	if err := s.store.DeleteDocuments(ctx, tool, repoRoot, removed); err != nil {
		return nil, fmt.Errorf("remove deleted documents: %w", err)
	}
	stats.FilesRemoved = len(removed)

	stats.DurationMS = time.Since(start).Milliseconds()
	s.log.Debug("sync pass complete",
		zap.String("tool", tool),
		zap.String("directory", directory),
		zap.Int("scanned", stats.FilesScanned),
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("removed", stats.FilesRemoved),
		zap.Int("errors", stats.FileErrors))

	return stats, nil
}

// match applies include then exclude patterns to a slash-separated
// relative path.
func (s *Syncer) match(rel string) bool {
	included := false
	for _, p := range s.includes {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range s.excludes {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return false
		}
	}
	return true
}
