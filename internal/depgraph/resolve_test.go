package depgraph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/papapumpkin/pulsar/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "resolve.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	dists := [][]any{
		{"Foo", "1.0", "AKI"},
		{"Bar", "2.0", "BOB"},
	}
	if err := s.BulkInsert(ctx, "distribution", []string{"name", "version", "author"}, dists); err != nil {
		t.Fatalf("seed distributions: %v", err)
	}
	mods := [][]any{
		{"Foo", "1.0", "Foo"},
		{"Bar", "2.0", "Bar"},
		{"Bar::Extra", "2.0", "Bar"},
	}
	if err := s.BulkInsert(ctx, "module", []string{"name", "version", "dist"}, mods); err != nil {
		t.Fatalf("seed modules: %v", err)
	}
	return s
}

func TestResolveCollapsesToMaxCore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seedStore(t)

	// Two module-level declarations that map to the same collapsed edge
	// (Foo → Bar, runtime) with different core-since values.
	reqs := [][]any{
		{"Foo-1.0", "Foo", "Bar", "2.0", "runtime", "5.6"},
		{"Foo-1.0", "Foo", "Bar::Extra", "2.0", "runtime", "5.10"},
		{"Foo-1.0", "Foo", "Bar", "2.0", "build", "0"},
	}
	cols := []string{"release", "dist", "module", "version", "phase", "core"}
	if err := s.BulkInsert(ctx, "stage_requires", cols, reqs); err != nil {
		t.Fatalf("seed requires: %v", err)
	}

	requires, deps, err := Resolve(ctx, s)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if requires != 3 {
		t.Errorf("requires rows = %d, want 3", requires)
	}
	if deps != 2 {
		t.Errorf("dependency rows = %d, want 2 (runtime collapsed, build separate)", deps)
	}

	var core string
	err = s.QueryRow(ctx,
		`SELECT core FROM dependency WHERE dist = ? AND dependency = ? AND phase = ?`,
		"Foo", "Bar", "runtime").Scan(&core)
	if err != nil {
		t.Fatalf("query collapsed edge: %v", err)
	}
	if core != "5.10" {
		t.Errorf("core = %q, want %q (maximal value wins)", core, "5.10")
	}
}

func TestResolveDropsUnknownModules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seedStore(t)

	reqs := [][]any{
		{"Foo-1.0", "Foo", "Bar", "2.0", "runtime", "0"},
		{"Foo-1.0", "Foo", "CoreOnly::Thing", "0", "runtime", "5.8"},
	}
	cols := []string{"release", "dist", "module", "version", "phase", "core"}
	if err := s.BulkInsert(ctx, "stage_requires", cols, reqs); err != nil {
		t.Fatalf("seed requires: %v", err)
	}

	_, deps, err := Resolve(ctx, s)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if deps != 1 {
		t.Errorf("dependency rows = %d, want 1 (unknown module dropped)", deps)
	}
}

func TestResolveSelfEdgePassesThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seedStore(t)

	reqs := [][]any{
		{"Foo-1.0", "Foo", "Foo", "1.0", "runtime", "0"},
	}
	cols := []string{"release", "dist", "module", "version", "phase", "core"}
	if err := s.BulkInsert(ctx, "stage_requires", cols, reqs); err != nil {
		t.Fatalf("seed requires: %v", err)
	}

	_, deps, err := Resolve(ctx, s)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if deps != 1 {
		t.Errorf("dependency rows = %d, want 1 (self-edge preserved in table)", deps)
	}

	// The metrics graph drops it.
	g, err := LoadGraph(ctx, s)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	m := g.Compute()
	if got := m.Volatility["Foo"]; got != 0 {
		t.Errorf("volatility(Foo) = %d, want 0 (self-edge ignored by metrics)", got)
	}
}

func TestBackfill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seedStore(t)

	reqs := [][]any{
		{"Foo-1.0", "Foo", "Bar", "2.0", "runtime", "0"},
	}
	cols := []string{"release", "dist", "module", "version", "phase", "core"}
	if err := s.BulkInsert(ctx, "stage_requires", cols, reqs); err != nil {
		t.Fatalf("seed requires: %v", err)
	}
	if _, _, err := Resolve(ctx, s); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	g, err := LoadGraph(ctx, s)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	n, err := Backfill(ctx, s, g.Compute(), 1)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 2 {
		t.Errorf("backfilled rows = %d, want 2", n)
	}

	var weight, volatility int
	if err := s.QueryRow(ctx,
		`SELECT weight, volatility FROM distribution WHERE name = ?`, "Bar").
		Scan(&weight, &volatility); err != nil {
		t.Fatalf("query Bar: %v", err)
	}
	if weight != 1 || volatility != 0 {
		t.Errorf("Bar metrics = (%d, %d), want (1, 0)", weight, volatility)
	}
}
