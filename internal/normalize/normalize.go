// Package normalize projects each raw extract into a staging table keyed
// consistently with the target schema. Source-specific representations are
// discarded here; everything downstream works with release identities,
// author ids and module names only.
package normalize

import (
	"context"
	"fmt"
	"sort"

	"github.com/papapumpkin/pulsar/internal/source"
	"github.com/papapumpkin/pulsar/internal/store"
)

// ReleaseID builds the uniform release identity used to join extracts that
// are keyed by (name, version) pairs.
func ReleaseID(name, version string) string {
	return name + "-" + version
}

// Counts records how many rows each staging table received. Optional
// extracts that were absent report -1 so callers can tell "absent" from
// "empty".
type Counts struct {
	Releases int
	Modules  int
	Authors  int
	Requires int
	Uploads  int
	Testers  int
	Ratings  int
	Metas    int
	Tickets  int
}

// Total sums the rows written across all staging tables.
func (c Counts) Total() int {
	total := 0
	for _, n := range []int{
		c.Releases, c.Modules, c.Authors, c.Requires,
		c.Uploads, c.Testers, c.Ratings, c.Metas, c.Tickets,
	} {
		if n > 0 {
			total += n
		}
	}
	return total
}

// Run loads every extract in set into its staging table. Required extracts
// abort on failure; absent optional extracts are skipped and later merge
// stages degrade the corresponding columns to null.
func Run(ctx context.Context, s *store.Store, set *source.Set) (Counts, error) {
	c := Counts{Uploads: -1, Testers: -1, Ratings: -1, Metas: -1, Tickets: -1}

	if err := set.Validate(); err != nil {
		return c, err
	}

	releases, err := set.Releases.Releases()
	if err != nil {
		return c, fmt.Errorf("normalize: releases: %w", err)
	}
	relRows := make([][]any, 0, len(releases))
	distByRelease := make(map[string]string, len(releases))
	for _, r := range releases {
		id := ReleaseID(r.Name, r.Version)
		if _, dup := distByRelease[id]; dup {
			continue
		}
		distByRelease[id] = r.Name
		relRows = append(relRows, []any{id, r.Name, r.Version, r.Author, r.Path})
	}
	if err := s.BulkInsert(ctx, "stage_release",
		[]string{"release", "name", "version", "author", "path"}, relRows); err != nil {
		return c, err
	}
	c.Releases = len(relRows)

	modules, err := set.Modules.Modules()
	if err != nil {
		return c, fmt.Errorf("normalize: modules: %w", err)
	}
	modRows := make([][]any, 0, len(modules))
	seenMod := make(map[string]bool, len(modules))
	for _, m := range modules {
		if seenMod[m.Name] {
			continue
		}
		seenMod[m.Name] = true
		version := m.Version
		if version == "" {
			version = "0"
		}
		modRows = append(modRows, []any{m.Name, version, m.Dist})
	}
	if err := s.BulkInsert(ctx, "stage_module",
		[]string{"name", "version", "dist"}, modRows); err != nil {
		return c, err
	}
	c.Modules = len(modRows)

	authors, err := set.Authors.Authors()
	if err != nil {
		return c, fmt.Errorf("normalize: authors: %w", err)
	}
	authRows := make([][]any, 0, len(authors))
	seenAuth := make(map[string]bool, len(authors))
	for _, a := range authors {
		if seenAuth[a.ID] {
			continue
		}
		seenAuth[a.ID] = true
		authRows = append(authRows, []any{a.ID, a.Name})
	}
	if err := s.BulkInsert(ctx, "stage_author", []string{"id", "name"}, authRows); err != nil {
		return c, err
	}
	c.Authors = len(authRows)

	requires, err := set.Requires.Requires()
	if err != nil {
		return c, fmt.Errorf("normalize: requires: %w", err)
	}
	reqRows := make([][]any, 0, len(requires))
	for _, r := range requires {
		dist, ok := distByRelease[r.Release]
		if !ok {
			// Declaration for a release the primary index does not know;
			// nothing to attach it to.
			continue
		}
		reqRows = append(reqRows, []any{r.Release, dist, r.Module, nullable(r.Version), r.Phase, nullable(r.Core)})
	}
	if err := s.BulkInsert(ctx, "stage_requires",
		[]string{"release", "dist", "module", "version", "phase", "core"}, reqRows); err != nil {
		return c, err
	}
	c.Requires = len(reqRows)

	if set.Uploads != nil {
		n, err := stageUploads(ctx, s, set.Uploads)
		if err != nil {
			return c, err
		}
		c.Uploads = n
	}
	if set.Testers != nil {
		n, err := stageTesters(ctx, s, set.Testers)
		if err != nil {
			return c, err
		}
		c.Testers = n
	}
	if set.Ratings != nil {
		n, err := stageRatings(ctx, s, set.Ratings)
		if err != nil {
			return c, err
		}
		c.Ratings = n
	}
	if set.Metas != nil {
		n, err := stageMetas(ctx, s, set.Metas)
		if err != nil {
			return c, err
		}
		c.Metas = n
	}
	if set.Tickets != nil {
		n, err := stageTickets(ctx, s, set.Tickets)
		if err != nil {
			return c, err
		}
		c.Tickets = n
	}
	return c, nil
}

// stageUploads writes upload timestamps keyed by release identity. Rows are
// sorted shortest-distribution-name-first (then lexically) before dedup so
// that distributions sharing a namespace prefix resolve to the shorter,
// canonical name deterministically.
func stageUploads(ctx context.Context, s *store.Store, src source.Uploads) (int, error) {
	uploads, err := src.Uploads()
	if err != nil {
		return 0, fmt.Errorf("normalize: uploads: %w", err)
	}
	sorted := make([]source.UploadRow, len(uploads))
	copy(sorted, uploads)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Dist) != len(sorted[j].Dist) {
			return len(sorted[i].Dist) < len(sorted[j].Dist)
		}
		return sorted[i].Dist < sorted[j].Dist
	})

	rows := make([][]any, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for _, u := range sorted {
		id := ReleaseID(u.Dist, u.Version)
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, []any{id, u.Dist, u.Uploaded})
	}
	if err := s.BulkInsert(ctx, "stage_upload",
		[]string{"release", "dist", "uploaded"}, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func stageTesters(ctx context.Context, s *store.Store, src source.Testers) (int, error) {
	testers, err := src.Testers()
	if err != nil {
		return 0, fmt.Errorf("normalize: testers: %w", err)
	}
	rows := make([][]any, 0, len(testers))
	seen := make(map[string]bool, len(testers))
	for _, tr := range testers {
		id := ReleaseID(tr.Dist, tr.Version)
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, []any{id, tr.Pass, tr.Fail, tr.NA, tr.Unknown})
	}
	if err := s.BulkInsert(ctx, "stage_tester",
		[]string{"release", "pass", "fail", "na", "unknown"}, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func stageRatings(ctx context.Context, s *store.Store, src source.Ratings) (int, error) {
	ratings, err := src.Ratings()
	if err != nil {
		return 0, fmt.Errorf("normalize: ratings: %w", err)
	}
	rows := make([][]any, 0, len(ratings))
	seen := make(map[string]bool, len(ratings))
	for _, r := range ratings {
		if seen[r.Dist] {
			continue
		}
		seen[r.Dist] = true
		rows = append(rows, []any{r.Dist, r.Rating, r.Count})
	}
	if err := s.BulkInsert(ctx, "stage_rating",
		[]string{"dist", "rating", "rating_count"}, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func stageMetas(ctx context.Context, s *store.Store, src source.Metas) (int, error) {
	metas, err := src.Metas()
	if err != nil {
		return 0, fmt.Errorf("normalize: meta: %w", err)
	}
	rows := make([][]any, 0, len(metas))
	seen := make(map[string]bool, len(metas))
	for _, m := range metas {
		id := ReleaseID(m.Dist, m.Version)
		if seen[id] {
			continue
		}
		seen[id] = true
		meta := 0
		if m.Meta {
			meta = 1
		}
		rows = append(rows, []any{id, meta, nullable(m.License)})
	}
	if err := s.BulkInsert(ctx, "stage_meta",
		[]string{"release", "meta", "license"}, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// closedStatuses are ticket states excluded from the index; only open
// tickets are useful to index consumers.
var closedStatuses = map[string]bool{
	"resolved": true,
	"rejected": true,
	"closed":   true,
}

func stageTickets(ctx context.Context, s *store.Store, src source.Tickets) (int, error) {
	tickets, err := src.Tickets()
	if err != nil {
		return 0, fmt.Errorf("normalize: tickets: %w", err)
	}
	rows := make([][]any, 0, len(tickets))
	seen := make(map[string]bool, len(tickets))
	for _, tk := range tickets {
		if closedStatuses[tk.Status] || seen[tk.ID] {
			continue
		}
		seen[tk.ID] = true
		rows = append(rows, []any{tk.ID, tk.Dist, tk.Subject, tk.Status, tk.Severity, tk.Created, tk.Updated})
	}
	if err := s.BulkInsert(ctx, "stage_ticket",
		[]string{"id", "dist", "subject", "status", "severity", "created", "updated"}, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
