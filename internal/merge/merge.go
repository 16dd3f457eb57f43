// Package merge joins the staging tables into the final entity tables.
// A distribution row exists whenever the primary package index has it;
// optional extracts contribute columns through LEFT JOINs and keyed
// backfill passes, and their absence leaves nulls, never a missing row.
package merge

import (
	"context"
	"fmt"

	"github.com/papapumpkin/pulsar/internal/clean"
	"github.com/papapumpkin/pulsar/internal/store"
)

// Result reports how many rows each merge step produced or touched.
type Result struct {
	Authors        int
	Distributions  int
	Modules        int
	Tickets        int
	RatingsApplied int
	MetasApplied   int
}

// Run builds the author, distribution, module and ticket tables, then
// applies the rating and meta backfills in batches of batchSize.
// Weight and volatility are left at their default of 0.
func Run(ctx context.Context, s *store.Store, batchSize int) (Result, error) {
	var res Result

	if err := dedupReleases(ctx, s); err != nil {
		return res, err
	}

	n, err := execCount(ctx, s, `INSERT INTO author (id, name) SELECT id, name FROM stage_author`)
	if err != nil {
		return res, fmt.Errorf("merge: authors: %w", err)
	}
	res.Authors = n

	// Left joins keep every primary-index release even when the optional
	// uploads/testers extracts have no matching row.
	n, err = execCount(ctx, s, `
		INSERT INTO distribution
			(name, version, author, path, uploaded, pass, fail, na, unknown)
		SELECT r.name, r.version, r.author, r.path,
			u.uploaded, t.pass, t.fail, t.na, t.unknown
		FROM stage_release r
		LEFT JOIN stage_upload u ON u.release = r.release
		LEFT JOIN stage_tester t ON t.release = r.release`)
	if err != nil {
		return res, fmt.Errorf("merge: distributions: %w", err)
	}
	res.Distributions = n

	// Referential integrity is enforced here, not deferred: modules whose
	// owning distribution is unknown never reach the final table.
	n, err = execCount(ctx, s, `
		INSERT INTO module (name, version, dist)
		SELECT m.name, m.version, m.dist
		FROM stage_module m
		WHERE m.dist IN (SELECT name FROM distribution)`)
	if err != nil {
		return res, fmt.Errorf("merge: modules: %w", err)
	}
	res.Modules = n

	n, err = execCount(ctx, s, `
		INSERT INTO ticket (id, dist, subject, status, severity, created, updated)
		SELECT t.id, t.dist, t.subject, t.status, t.severity, t.created, t.updated
		FROM stage_ticket t
		WHERE t.dist IN (SELECT name FROM distribution)`)
	if err != nil {
		return res, fmt.Errorf("merge: tickets: %w", err)
	}
	res.Tickets = n

	// Ratings use a coarser key (bare distribution name), so they cannot
	// ride the release-identity joins above and are applied post-hoc.
	applied, err := backfillRatings(ctx, s, batchSize)
	if err != nil {
		return res, fmt.Errorf("merge: rating backfill: %w", err)
	}
	res.RatingsApplied = applied

	applied, err = backfillMetas(ctx, s, batchSize)
	if err != nil {
		return res, fmt.Errorf("merge: meta backfill: %w", err)
	}
	res.MetasApplied = applied

	return res, nil
}

// dedupReleases keeps one release per distribution name in stage_release:
// the numerically highest version, with lexical order breaking ties. The
// final distribution table holds one row per latest known release.
func dedupReleases(ctx context.Context, s *store.Store) error {
	rows, err := s.Query(ctx, `SELECT release, name, version FROM stage_release ORDER BY name, release`)
	if err != nil {
		return fmt.Errorf("merge: scan releases: %w", err)
	}
	defer rows.Close()

	type best struct {
		release string
		version string
	}
	keep := make(map[string]best)
	var drop []string
	for rows.Next() {
		var release, name, version string
		if err := rows.Scan(&release, &name, &version); err != nil {
			return fmt.Errorf("merge: scan release row: %w", err)
		}
		cur, ok := keep[name]
		if !ok {
			keep[name] = best{release: release, version: version}
			continue
		}
		if clean.Compare(version, cur.version) > 0 {
			drop = append(drop, cur.release)
			keep[name] = best{release: release, version: version}
		} else {
			drop = append(drop, release)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("merge: iterate releases: %w", err)
	}

	for _, release := range drop {
		if _, err := s.Exec(ctx, `DELETE FROM stage_release WHERE release = ?`, release); err != nil {
			return fmt.Errorf("merge: drop superseded release: %w", err)
		}
	}
	return nil
}

func backfillRatings(ctx context.Context, s *store.Store, batchSize int) (int, error) {
	// The pool holds a single connection, so the cursor must be exhausted
	// before the batch writer opens its transaction.
	type ratingRow struct {
		dist   string
		rating float64
		count  int
	}
	rows, err := s.Query(ctx, `SELECT dist, rating, rating_count FROM stage_rating ORDER BY dist`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var pending []ratingRow
	for rows.Next() {
		var r ratingRow
		if err := rows.Scan(&r.dist, &r.rating, &r.count); err != nil {
			return 0, err
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	w := s.NewBatchWriter(
		`UPDATE distribution SET rating = ?, rating_count = ? WHERE name = ?`, batchSize)
	for _, r := range pending {
		// Unmatched names update zero rows; that is the recoverable path.
		if err := w.Exec(ctx, r.rating, r.count, r.dist); err != nil {
			return w.Total(), err
		}
	}
	return w.Total(), w.Flush()
}

func backfillMetas(ctx context.Context, s *store.Store, batchSize int) (int, error) {
	// Meta rows are keyed by release identity; join back to the surviving
	// release rows to recover the bare distribution name. As with ratings,
	// the rows are materialized before the writer takes the connection.
	type metaRow struct {
		name    string
		meta    int
		license *string
	}
	rows, err := s.Query(ctx, `
		SELECT r.name, m.meta, m.license
		FROM stage_meta m
		JOIN stage_release r ON r.release = m.release
		ORDER BY r.name`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var pending []metaRow
	for rows.Next() {
		var m metaRow
		if err := rows.Scan(&m.name, &m.meta, &m.license); err != nil {
			return 0, err
		}
		pending = append(pending, m)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	w := s.NewBatchWriter(
		`UPDATE distribution SET meta = ?, license = ? WHERE name = ?`, batchSize)
	for _, m := range pending {
		if err := w.Exec(ctx, m.meta, m.license, m.name); err != nil {
			return w.Total(), err
		}
	}
	return w.Total(), w.Flush()
}

func execCount(ctx context.Context, s *store.Store, query string, args ...any) (int, error) {
	res, err := s.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
