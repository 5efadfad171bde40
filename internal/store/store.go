// Package store owns the embedded sqlite database holding the mirrored
// tables plus the bookkeeping tables around them (company state, sync
// history, audit trail, staging).
package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite handle. All writes go through withWriteLock so
// there is exactly one writer at a time regardless of how many goroutines
// share the Store; readers go straight to the pool and WAL keeps them
// unblocked.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database at path and applies the
// session pragmas.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for read-only queries by collaborating packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Exec runs one write statement under the write lock. For collaborating
// packages that own their own tables (the audit trail).
func (s *Store) Exec(query string, args ...any) error {
	return s.withWriteLock(func() error {
		_, err := s.db.Exec(query, args...)
		return err
	})
}

// withWriteLock serializes all writes through a single mutex.
func (s *Store) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// withTx runs fn inside a write-locked transaction.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// TableExists reports whether a table is present.
func (s *Store) TableExists(name string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// tableColumns returns the column names of a table via PRAGMA table_info.
func (s *Store) tableColumns(table string) (map[string]bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// EnsureColumns adds any missing columns to table as TEXT DEFAULT ''.
// Incoming rows may carry columns added to the extraction config after
// the table was created.
func (s *Store) EnsureColumns(table string, names []string) error {
	existing, err := s.tableColumns(table)
	if err != nil {
		return err
	}
	missing := make([]string, 0)
	for _, n := range names {
		if !existing[n] {
			missing = append(missing, n)
		}
	}
	sort.Strings(missing)
	return s.withWriteLock(func() error {
		for _, n := range missing {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT DEFAULT ''", quoteIdent(table), quoteIdent(n))
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, n, err)
			}
		}
		return nil
	})
}

// quoteIdent quotes an identifier for interpolation into DDL and dynamic
// DML. Table and column names come from config files, never from the
// wire.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
