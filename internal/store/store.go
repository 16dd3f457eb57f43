// Package store owns the target relational index: a single SQLite database
// file that the pipeline populates and an external publisher ships as-is.
// It provides the schema, bulk inserts, indexed queries, and batched
// transactional updates used by every stage above it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Store wraps the SQLite database backing the merged index.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, enables WAL mode and
// a busy timeout, and creates the schema tables if they do not exist.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// Limit to one connection. SQLite only supports a single writer; using
	// one connection avoids SQLITE_BUSY contention between pooled connections
	// that each need their own PRAGMA setup. The pipeline is single-threaded
	// anyway, and WAL mode keeps writes crash-safe.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Reset drops every known table and recreates the schema. Each pipeline run
// rebuilds the whole index from scratch; there is no update-in-place.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range allTables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("store: drop table %s: %w", table, err)
		}
	}
	return s.initSchema(ctx)
}

// BulkInsert inserts rows into table in a single transaction using one
// prepared statement. Column names come from the trusted schema, never from
// input data; row values are always bound as parameters.
func (s *Store) BulkInsert(ctx context.Context, table string, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insert tx for %s: %w", table, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	placeholders := strings.Repeat("?,", len(cols))
	q := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		placeholders[:len(placeholders)-1] + ")"

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: prepare insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("store: insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit insert for %s: %w", table, err)
	}
	return nil
}

// Exec runs a single parameterized statement against the store.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: exec: %w", err)
	}
	return res, nil
}

// Query runs a parameterized query and returns its rows. The caller owns
// the returned rows and must close them.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	return rows, nil
}

// QueryRow runs a parameterized query expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return n, nil
}

// indexDDL is executed after all tables are loaded. Building indexes last
// keeps the bulk inserts fast.
var indexDDL = []string{
	"CREATE INDEX IF NOT EXISTS ix_module_dist ON module (dist)",
	"CREATE INDEX IF NOT EXISTS ix_distribution_author ON distribution (author)",
	"CREATE INDEX IF NOT EXISTS ix_dependency_dependency ON dependency (dependency)",
	"CREATE INDEX IF NOT EXISTS ix_dependency_dist ON dependency (dist)",
	"CREATE INDEX IF NOT EXISTS ix_requires_dist ON requires (dist)",
	"CREATE INDEX IF NOT EXISTS ix_requires_module ON requires (module)",
	"CREATE INDEX IF NOT EXISTS ix_ticket_dist ON ticket (dist)",
}

// CreateIndexes builds the query indexes on the final tables.
func (s *Store) CreateIndexes(ctx context.Context) error {
	for _, ddl := range indexDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("store: create index: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
