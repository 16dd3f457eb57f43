// Package depgraph collapses module-level dependency declarations into
// distribution-level edges and computes the weight and volatility metrics
// over the resulting directed graph. Unlike a build scheduler's DAG, real
// dependency data contains cycles, so every traversal here must terminate
// and produce deterministic counts on cyclic input.
package depgraph

import "sort"

// Graph is a directed graph of distributions. An edge A → B means
// "A depends on B". Self-edges are rejected at insertion; duplicate edges
// collapse silently.
type Graph struct {
	index map[string]int
	names []string
	adj   []map[int]bool // forward: node → dependencies
	radj  []map[int]bool // reverse: node → dependents
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode ensures a node exists for name and returns its index. Adding an
// existing node is a no-op.
func (g *Graph) AddNode(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	i := len(g.names)
	g.index[name] = i
	g.names = append(g.names, name)
	g.adj = append(g.adj, make(map[int]bool))
	g.radj = append(g.radj, make(map[int]bool))
	return i
}

// AddEdge records that from depends on to, creating missing nodes.
// Self-edges register the node but are otherwise dropped; they carry no
// metric information.
func (g *Graph) AddEdge(from, to string) {
	f := g.AddNode(from)
	if from == to {
		return
	}
	t := g.AddNode(to)
	g.adj[f][t] = true
	g.radj[t][f] = true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.names)
}

// Names returns all node names, sorted for deterministic iteration.
func (g *Graph) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	sort.Strings(out)
	return out
}

// sortedNeighbors returns the keys of a neighbor set in index order so
// traversals visit nodes deterministically.
func sortedNeighbors(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// condensation holds the strongly connected components of a graph and the
// component order produced by Tarjan's algorithm. Components are emitted
// successors-first: by the time a component is popped, every component it
// can reach has already been emitted.
type condensation struct {
	comp    []int   // node index → component id
	members [][]int // component id → node indices
}

// tarjanFrame is one entry of the explicit DFS stack. Deep dependency
// chains must not be limited by call-stack depth, so the traversal is
// fully iterative.
type tarjanFrame struct {
	node  int
	succs []int
	next  int
}

// condense computes strongly connected components over the given adjacency
// using an iterative Tarjan traversal with deterministic neighbor order.
func condense(n int, adj []map[int]bool) *condensation {
	const unvisited = -1

	c := &condensation{comp: make([]int, n)}
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
		c.comp[i] = unvisited
	}

	var (
		counter  int
		sccStack []int
		dfs      []tarjanFrame
	)

	for start := 0; start < n; start++ {
		if index[start] != unvisited {
			continue
		}
		dfs = append(dfs[:0], tarjanFrame{node: start, succs: sortedNeighbors(adj[start])})
		index[start] = counter
		lowlink[start] = counter
		counter++
		sccStack = append(sccStack, start)
		onStack[start] = true

		for len(dfs) > 0 {
			f := &dfs[len(dfs)-1]
			if f.next < len(f.succs) {
				succ := f.succs[f.next]
				f.next++
				switch {
				case index[succ] == unvisited:
					index[succ] = counter
					lowlink[succ] = counter
					counter++
					sccStack = append(sccStack, succ)
					onStack[succ] = true
					dfs = append(dfs, tarjanFrame{node: succ, succs: sortedNeighbors(adj[succ])})
				case onStack[succ]:
					// Back edge into the current traversal path: part of a
					// cycle. Recording the lowlink is all that is needed;
					// the walk neither revisits nor loops.
					if index[succ] < lowlink[f.node] {
						lowlink[f.node] = index[succ]
					}
				}
				continue
			}

			node := f.node
			dfs = dfs[:len(dfs)-1]
			if len(dfs) > 0 {
				parent := &dfs[len(dfs)-1]
				if lowlink[node] < lowlink[parent.node] {
					lowlink[parent.node] = lowlink[node]
				}
			}
			if lowlink[node] == index[node] {
				cid := len(c.members)
				var members []int
				for {
					top := sccStack[len(sccStack)-1]
					sccStack = sccStack[:len(sccStack)-1]
					onStack[top] = false
					c.comp[top] = cid
					members = append(members, top)
					if top == node {
						break
					}
				}
				sort.Ints(members)
				c.members = append(c.members, members)
			}
		}
	}
	return c
}

// reachability returns, for every component, the set of node indices
// reachable from it (its own members included). Components are processed
// in Tarjan emission order, which is successors-first, so each component's
// set is the union of its members and the already-final sets of its
// successor components — every set is computed exactly once.
func reachability(cond *condensation, adj []map[int]bool) []map[int]bool {
	reach := make([]map[int]bool, len(cond.members))
	for cid := 0; cid < len(cond.members); cid++ {
		set := make(map[int]bool)
		for _, node := range cond.members[cid] {
			set[node] = true
		}
		for _, node := range cond.members[cid] {
			for succ := range adj[node] {
				sc := cond.comp[succ]
				if sc == cid {
					continue
				}
				for reached := range reach[sc] {
					set[reached] = true
				}
			}
		}
		reach[cid] = set
	}
	return reach
}
