package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the app-owned amora.db cache.
// The in-memory core stays authoritative; the cache exists so the local API
// and TUI have something to show before the first directory fetch completes
// and while offline.
type DB struct {
	*sql.DB
	fts bool
}

// FTSEnabled reports whether full-text search is backed by FTS5. When the
// driver lacks the module, SearchMessages degrades to a LIKE scan.
func (db *DB) FTSEnabled() bool {
	return db.fts
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db}, nil
}
