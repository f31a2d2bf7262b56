package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Document is one indexed decision record row.
type Document struct {
	Tool        string
	RepoRoot    string
	Path        string
	DocID       uint32
	Title       string
	Status      string
	Date        string
	Tags        []string
	ContentHash string
	IndexedAt   time.Time
}

// UpsertDocuments writes the given documents in one transaction,
// replacing any existing rows with the same (tool, repo_root, path).
func (s *Store) UpsertDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents
			(tool, repo_root, path, doc_id, title, status, date, tags, content_hash, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tool, repo_root, path) DO UPDATE SET
			doc_id=excluded.doc_id,
			title=excluded.title,
			status=excluded.status,
			date=excluded.date,
			tags=excluded.tags,
			content_hash=excluded.content_hash,
			indexed_at=excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		indexedAt := d.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			d.Tool, d.RepoRoot, d.Path, d.DocID, d.Title, d.Status, d.Date,
			strings.Join(d.Tags, ","), d.ContentHash, indexedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", d.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// DeleteDocuments removes rows for the given paths.
func (s *Store) DeleteDocuments(ctx context.Context, tool, repoRoot string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE tool=? AND repo_root=? AND path=?`,
			tool, repoRoot, p); err != nil {
			return fmt.Errorf("delete document %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// Hashes returns path -> content_hash for every indexed document under
// the given prefix. The syncer uses it to skip unchanged files and to
// detect deletions.
func (s *Store) Hashes(ctx context.Context, tool, repoRoot, pathPrefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content_hash FROM documents
		 WHERE tool=? AND repo_root=? AND path LIKE ? ESCAPE '\'`,
		tool, repoRoot, likePrefix(pathPrefix))
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan hash row: %w", err)
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// Get returns one document row, or sql.ErrNoRows wrapped if absent.
func (s *Store) Get(ctx context.Context, tool, repoRoot, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tool, repo_root, path, doc_id, title, status, date, tags, content_hash, indexed_at
		 FROM documents WHERE tool=? AND repo_root=? AND path=?`,
		tool, repoRoot, path)

	var d Document
	var tags, indexedAt string
	err := row.Scan(&d.Tool, &d.RepoRoot, &d.Path, &d.DocID, &d.Title, &d.Status,
		&d.Date, &tags, &d.ContentHash, &indexedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %s: %w", path, err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if tags != "" {
		d.Tags = strings.Split(tags, ",")
	}
	if t, perr := time.Parse(time.RFC3339, indexedAt); perr == nil {
		d.IndexedAt = t
	}
	return &d, nil
}

// Count returns the number of indexed documents for a tool/repo pair.
func (s *Store) Count(ctx context.Context, tool, repoRoot string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE tool=? AND repo_root=?`,
		tool, repoRoot).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func likePrefix(prefix string) string {
	if prefix == "" || prefix == "." {
		return "%"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "/%"
}
