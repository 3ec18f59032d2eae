package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MarkdownCacheRepo stores converted page markdown keyed by source URL.
type MarkdownCacheRepo struct {
	db *sql.DB
	q  *writeQueue
}

// CachedMarkdown is one cache row.
type CachedMarkdown struct {
	URL          string
	Markdown     string
	CanonicalURL string
	CapturedAt   time.Time
}

// Get returns the cached markdown for a URL if it was captured within
// maxAge. A stale or missing entry returns ErrNotFound.
func (r *MarkdownCacheRepo) Get(ctx context.Context, url string, maxAge time.Duration) (*CachedMarkdown, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT url, markdown, canonical_url, captured_at
		FROM markdown_cache WHERE url = ?`, url)

	var (
		c         CachedMarkdown
		canonical sql.NullString
		captured  string
	)
	err := row.Scan(&c.URL, &c.Markdown, &canonical, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CanonicalURL = canonical.String
	c.CapturedAt = parseTime(captured)
	if time.Since(c.CapturedAt) > maxAge {
		return nil, ErrNotFound
	}
	return &c, nil
}

// Put stores or replaces the cached markdown for a URL.
func (r *MarkdownCacheRepo) Put(ctx context.Context, url, markdown, canonicalURL string) error {
	return r.q.do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO markdown_cache (url, markdown, canonical_url, captured_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				markdown = excluded.markdown,
				canonical_url = excluded.canonical_url,
				captured_at = excluded.captured_at`,
			url, markdown, nullString(canonicalURL),
			time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

// Prune deletes entries older than maxAge. Returns the number removed.
func (r *MarkdownCacheRepo) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	var n int64
	err := r.q.do(ctx, func() error {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM markdown_cache WHERE captured_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
