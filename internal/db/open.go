// Package db opens the single-file library database and provides the
// transaction and scanning helpers shared by every repository.
package db

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver
)

const driverName = "sqlite"

// ErrNoFTS5 is returned when the SQLite build lacks the FTS5 extension.
var ErrNoFTS5 = errors.New("FTS5 is not enabled in this SQLite build")

// Open opens (creating if needed) the database file at path and applies the
// schema. Every pooled connection gets WAL journaling and a busy timeout, and
// write transactions take the lock up front so concurrent writers queue
// instead of failing on lock upgrade.
func Open(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(30000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database with the schema applied.
// The pool is pinned to one connection since each :memory: connection would
// otherwise see its own empty database.
func OpenMemory() (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(db *sqlx.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	var fts5 bool
	err := db.QueryRow(`SELECT COUNT(*) > 0 FROM pragma_compile_options WHERE compile_options = 'ENABLE_FTS5'`).Scan(&fts5)
	if err != nil {
		return fmt.Errorf("verify FTS5: %w", err)
	}
	if !fts5 {
		return ErrNoFTS5
	}

	if err := initSchema(db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
