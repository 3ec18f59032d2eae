// Package store provides the typed repositories over the embedded database.
//
// Reads go straight to the database; every write is funneled through a
// single writer queue so concurrent monitoring tasks never contend on
// sqlite's write lock and multi-row commits stay atomic.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Store bundles the repositories and owns the writer queue.
type Store struct {
	db *sql.DB
	q  *writeQueue

	Products     *ProductRepo
	Observations *ObservationRepo
	Runs         *RunRepo
	Patterns     *PatternRepo
	Cache        *MarkdownCacheRepo
}

// New creates a Store over an opened database and starts the writer queue.
func New(db *sql.DB) *Store {
	q := newWriteQueue()
	s := &Store{db: db, q: q}
	s.Products = &ProductRepo{db: db, q: q}
	s.Observations = &ObservationRepo{db: db, q: q}
	s.Runs = &RunRepo{db: db, q: q}
	s.Patterns = &PatternRepo{db: db, q: q}
	s.Cache = &MarkdownCacheRepo{db: db, q: q}
	return s
}

// Close drains the writer queue. The database handle is owned by the caller.
func (s *Store) Close() {
	s.q.close()
}

// writeQueue serializes mutations through one goroutine.
type writeQueue struct {
	jobs chan job
	done chan struct{}
}

type job struct {
	fn  func() error
	res chan error
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{
		jobs: make(chan job, 64),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *writeQueue) run() {
	defer close(q.done)
	for j := range q.jobs {
		j.res <- j.fn()
	}
}

// do enqueues a write and waits for it to complete.
func (q *writeQueue) do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, res: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.res:
		return err
	case <-ctx.Done():
		// The write still runs to completion; only the wait is abandoned.
		return ctx.Err()
	}
}

func (q *writeQueue) close() {
	close(q.jobs)
	<-q.done
}

// Shared scan helpers, RFC3339 TEXT timestamps throughout.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
