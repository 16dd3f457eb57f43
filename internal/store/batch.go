package store

import (
	"context"
	"database/sql"
	"fmt"
)

// BatchWriter executes a single parameterized UPDATE statement repeatedly,
// committing every batchSize executions. Backfill passes (ratings, meta,
// weight, volatility) run through it so transaction-log growth stays bounded
// while commit overhead is still amortized. A crash mid-batch loses at most
// the current uncommitted batch; committed batches are never affected.
type BatchWriter struct {
	s         *Store
	query     string
	batchSize int

	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
	total   int
}

// NewBatchWriter creates a BatchWriter for the given UPDATE statement.
// batchSize must be positive; values below 1 are treated as 1.
func (s *Store) NewBatchWriter(query string, batchSize int) *BatchWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchWriter{s: s, query: query, batchSize: batchSize}
}

// Exec binds args to the writer's statement inside the current batch
// transaction, starting one if needed, and commits when the batch is full.
func (w *BatchWriter) Exec(ctx context.Context, args ...any) error {
	if w.tx == nil {
		tx, err := w.s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin batch tx: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, w.query)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("store: prepare batch stmt: %w", err)
		}
		w.tx, w.stmt = tx, stmt
	}

	if _, err := w.stmt.ExecContext(ctx, args...); err != nil {
		w.abort()
		return fmt.Errorf("store: batch exec: %w", err)
	}
	w.pending++
	w.total++

	if w.pending >= w.batchSize {
		return w.commit()
	}
	return nil
}

// Flush commits any pending rows. Safe to call when nothing is pending.
func (w *BatchWriter) Flush() error {
	if w.tx == nil {
		return nil
	}
	return w.commit()
}

// Total returns the number of successfully executed statements, including
// any not yet committed.
func (w *BatchWriter) Total() int {
	return w.total
}

func (w *BatchWriter) commit() error {
	w.stmt.Close() //nolint:errcheck
	err := w.tx.Commit()
	w.tx, w.stmt, w.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

func (w *BatchWriter) abort() {
	if w.stmt != nil {
		w.stmt.Close() //nolint:errcheck
	}
	if w.tx != nil {
		w.tx.Rollback() //nolint:errcheck
	}
	w.tx, w.stmt, w.pending = nil, nil, 0
}
