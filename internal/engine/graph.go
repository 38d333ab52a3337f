package engine

import (
	"fmt"
	"slices"
	"strings"
)

// EdgeKind says which registration produced a dependency edge.
type EdgeKind string

const (
	// EdgeSync: writes to the source collection rewrite the target collection.
	EdgeSync EdgeKind = "sync"

	// EdgeRefresh: writes to a trigger collection rewrite the target collection.
	EdgeRefresh EdgeKind = "refresh"
)

// Edge is a directed dependency between two collections.
type Edge struct {
	From         string   `json:"from"`
	To           string   `json:"to"`
	DefinitionID string   `json:"definition"`
	Kind         EdgeKind `json:"kind"`
}

// CycleWarning represents a potential propagation cycle between collections.
//
// Cycles are warnings, not errors: a cycle only loops forever when the
// outputs never settle, and the runtime flow guards (max steps, oscillation
// detection) stop those.
type CycleWarning struct {
	Path    []string `json:"path"`    // Collection path: ["posts", "postsView", "posts"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles performs static cycle analysis on collection dependency edges.
//
// The algorithm:
//  1. Build collection -> collections adjacency from the edges
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle warning
//
// Output is deterministic: nodes are visited in sorted order, each path
// starts at its smallest collection name and warnings are sorted by path.
func AnalyzeCycles(edges []Edge) []CycleWarning {
	if len(edges) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(edges)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(strings.Join(a.Path, "\x00"), strings.Join(b.Path, "\x00"))
	})
	return warnings
}

// dependencyGraph maps collection -> sorted, de-duplicated successor collections.
type dependencyGraph map[string][]string

func buildDependencyGraph(edges []Edge) dependencyGraph {
	graph := make(dependencyGraph)
	for _, e := range edges {
		if graph[e.To] == nil {
			graph[e.To] = []string{}
		}
		if !slices.Contains(graph[e.From], e.To) {
			graph[e.From] = append(graph[e.From], e.To)
		}
	}
	for node := range graph {
		slices.Sort(graph[node])
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-triggering collection detected: %s → %s", name, name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks SCC members from the smallest name, following
// the first unvisited in-SCC successor, until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
