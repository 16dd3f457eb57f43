package depgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/papapumpkin/pulsar/internal/store"
)

// umbrellaPrefixes mark bundle/meta/demo distributions. They exist to pull
// in other packages, so counting them as dependents would inflate every
// real package's weight.
var umbrellaPrefixes = []string{"Bundle-", "Task-", "Acme-"}

// IsUmbrella reports whether a distribution name follows the umbrella
// naming convention.
func IsUmbrella(name string) bool {
	for _, p := range umbrellaPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Metrics holds the computed weight and volatility for every node.
type Metrics struct {
	Weight     map[string]int
	Volatility map[string]int
}

// Compute derives both metrics in two passes over the condensed graph:
// one forward traversal for volatility (fan-out) and one reverse traversal
// for weight (fan-in).
//
// weight(B) counts distinct non-umbrella distributions that transitively
// depend on B. volatility(A) counts distinct distributions A transitively
// depends on; the reachable set contains A itself, and the minus-one
// removes exactly that self entry, so a dependency-free node reports 0.
func (g *Graph) Compute() Metrics {
	m := Metrics{
		Weight:     make(map[string]int, len(g.names)),
		Volatility: make(map[string]int, len(g.names)),
	}
	if len(g.names) == 0 {
		return m
	}

	// The components of a graph and its reverse are identical, but
	// reachability depends on Tarjan's successors-first emission order,
	// which differs between the two orientations. Each direction gets its
	// own condensation so both reachability passes see finalized successor
	// sets.
	cond := condense(len(g.names), g.adj)
	down := reachability(cond, g.adj)
	rcond := condense(len(g.names), g.radj)
	up := reachability(rcond, g.radj)

	for i, name := range g.names {
		m.Volatility[name] = len(down[cond.comp[i]]) - 1

		weight := 0
		for dependent := range up[rcond.comp[i]] {
			if dependent == i {
				continue
			}
			if IsUmbrella(g.names[dependent]) {
				continue
			}
			weight++
		}
		m.Weight[name] = weight
	}
	return m
}

// Backfill writes weight and volatility into the distribution table in
// batches of batchSize. Distributions absent from the graph keep their
// default of 0.
func Backfill(ctx context.Context, s *store.Store, m Metrics, batchSize int) (int, error) {
	names := make([]string, 0, len(m.Weight))
	for name := range m.Weight {
		names = append(names, name)
	}
	// Deterministic update order keeps batch boundaries reproducible.
	sort.Strings(names)

	w := s.NewBatchWriter(
		`UPDATE distribution SET weight = ?, volatility = ? WHERE name = ?`, batchSize)
	for _, name := range names {
		if err := w.Exec(ctx, m.Weight[name], m.Volatility[name], name); err != nil {
			return w.Total(), fmt.Errorf("depgraph: backfill %s: %w", name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return w.Total(), fmt.Errorf("depgraph: backfill flush: %w", err)
	}
	return w.Total(), nil
}

// LoadGraph builds the metric graph from the finished dependency table.
// Every distribution becomes a node so dependency-free distributions still
// receive their zero metrics; self-edges are dropped at insertion.
func LoadGraph(ctx context.Context, s *store.Store) (*Graph, error) {
	g := NewGraph()

	rows, err := s.Query(ctx, `SELECT name FROM distribution ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("depgraph: load distributions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("depgraph: scan distribution: %w", err)
		}
		g.AddNode(name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("depgraph: iterate distributions: %w", err)
	}

	edges, err := s.Query(ctx, `SELECT DISTINCT dist, dependency FROM dependency ORDER BY dist, dependency`)
	if err != nil {
		return nil, fmt.Errorf("depgraph: load edges: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var from, to string
		if err := edges.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("depgraph: scan edge: %w", err)
		}
		g.AddEdge(from, to)
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("depgraph: iterate edges: %w", err)
	}
	return g, nil
}
