package depgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/papapumpkin/pulsar/internal/clean"
	"github.com/papapumpkin/pulsar/internal/store"
)

// Edge is one collapsed distribution-level dependency.
type Edge struct {
	Dist       string
	Dependency string
	Phase      string
	Core       string
}

// Resolve collapses the staged module-level dependency declarations into
// distribution-level edges and writes both final tables: the flattened
// requires table and the deduplicated dependency table.
//
// Each declared module is substituted with its owning distribution via the
// final module table, so every edge endpoint is a known distribution.
// Declarations naming modules outside the index (for example modules that
// only ever shipped with the language core) are dropped. Competing
// declarations for the same (dist, dependency, phase) keep the one with the
// maximal core-since value; equal values tie-break lexically for
// determinism. Self-edges pass through — the metrics stage filters them.
func Resolve(ctx context.Context, s *store.Store) (requires, dependencies int, err error) {
	n, err := flattenRequires(ctx, s)
	if err != nil {
		return 0, 0, err
	}
	requires = n

	rows, err := s.Query(ctx, `
		SELECT q.dist, m.dist, q.phase, q.core
		FROM stage_requires q
		JOIN module m ON m.name = q.module
		WHERE q.dist IN (SELECT name FROM distribution)
		ORDER BY q.dist, m.dist, q.phase, q.core`)
	if err != nil {
		return requires, 0, fmt.Errorf("depgraph: resolve query: %w", err)
	}
	defer rows.Close()

	type key struct{ dist, dep, phase string }
	best := make(map[key]Edge)
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Dist, &e.Dependency, &e.Phase, &e.Core); err != nil {
			return requires, 0, fmt.Errorf("depgraph: scan edge: %w", err)
		}
		k := key{e.Dist, e.Dependency, e.Phase}
		cur, ok := best[k]
		if !ok || clean.Compare(e.Core, cur.Core) > 0 {
			best[k] = e
			continue
		}
		// Equal maxima: the sorted scan already visited the lexically
		// smaller core first, so keeping the current row is deterministic.
	}
	if err := rows.Err(); err != nil {
		return requires, 0, fmt.Errorf("depgraph: iterate edges: %w", err)
	}

	edges := make([]Edge, 0, len(best))
	for _, e := range best {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Dist != b.Dist {
			return a.Dist < b.Dist
		}
		if a.Dependency != b.Dependency {
			return a.Dependency < b.Dependency
		}
		return a.Phase < b.Phase
	})

	batch := make([][]any, 0, len(edges))
	for _, e := range edges {
		batch = append(batch, []any{e.Dist, e.Dependency, e.Phase, e.Core})
	}
	if err := s.BulkInsert(ctx, "dependency",
		[]string{"dist", "dependency", "phase", "core"}, batch); err != nil {
		return requires, 0, fmt.Errorf("depgraph: insert dependencies: %w", err)
	}
	return requires, len(edges), nil
}

// flattenRequires copies the cleaned module-level declarations for known
// distributions into the final requires table.
func flattenRequires(ctx context.Context, s *store.Store) (int, error) {
	res, err := s.Exec(ctx, `
		INSERT INTO requires (dist, module, version, phase, core)
		SELECT q.dist, q.module, q.version, q.phase, q.core
		FROM stage_requires q
		WHERE q.dist IN (SELECT name FROM distribution)`)
	if err != nil {
		return 0, fmt.Errorf("depgraph: flatten requires: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("depgraph: flatten requires count: %w", err)
	}
	return int(n), nil
}
