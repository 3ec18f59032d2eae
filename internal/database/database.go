// Package database opens the embedded sqlite store and runs migrations.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/wearwatch/catalog-monitor/internal/database/migrations"
)

// ErrStoreUnavailable is returned when the database file is absent or
// corrupt. The caller chooses whether to recreate or abort.
var ErrStoreUnavailable = errors.New("store unavailable")

// New opens the sqlite database at the given DSN (file:path?params) and
// verifies the connection. The parent directory is created when missing;
// a corrupt file surfaces as ErrStoreUnavailable.
func New(dsn string) (*sql.DB, error) {
	if path := filePath(dsn); path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// The store is accessed through a single writer queue; one connection
	// keeps sqlite's locking out of the picture.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return db, nil
}

// Migrate runs all pending schema migrations.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// filePath extracts the on-disk path from a file: DSN.
func filePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	return strings.Split(p, "?")[0]
}
