package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning represents a potential write loop between handlers.
//
// Loops are warnings, not errors, because they may be intentional:
//   - Blinkers that toggle a status every cycle
//   - Counters that stop at a threshold
//   - Self-correcting feedback loops
type CycleWarning struct {
	Path    []string `json:"path"`    // Loop path: ["handler-a", "handler-b", "handler-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static loop analysis on a spec's handlers.
//
// A handler that writes a status can make every handler watching an
// expression over that status fire again on the next cycle. A loop in
// that graph may keep the engine from settling.
//
// The algorithm:
//  1. Resolve the statuses each expression reads, through sub-expressions
//  2. Add an edge from each handler to the handlers whose expression reads
//     a status it writes
//  3. Use Tarjan's algorithm to find strongly connected components
//  4. Report each SCC with size > 1 or self-loops as a potential loop
//
// A DAG (no loops) returns an empty warning list.
func AnalyzeCycles(spec *Spec) []CycleWarning {
	if spec == nil || len(spec.Handlers) == 0 {
		return []CycleWarning{}
	}

	graph, order := buildDependencyGraph(spec)
	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps handler name -> handlers it could make fire.
type dependencyGraph map[string][]string

// expressionReads maps each expression to the statuses it reads.
// Sub-expressions contribute their own statuses; only rows defined
// earlier are resolved.
func expressionReads(spec *Spec) map[string]map[string]bool {
	reads := make(map[string]map[string]bool)
	for _, c := range spec.Chunks {
		for _, row := range c.Expressions {
			set := make(map[string]bool)
			for _, cmp := range row.Comparisons {
				set[cmp.Status] = true
				if cmp.Right != "" {
					set[cmp.Right] = true
				}
			}
			for _, s := range row.Transitions {
				set[s] = true
			}
			for _, sub := range row.Subs {
				for s := range reads[sub.Expression] {
					set[s] = true
				}
			}
			reads[row.Name] = set
		}
	}
	return reads
}

// buildDependencyGraph constructs the handler dependency graph.
// Returns the graph and the handler names in declaration order.
func buildDependencyGraph(spec *Spec) (dependencyGraph, []string) {
	reads := expressionReads(spec)
	graph := make(dependencyGraph)
	order := make([]string, 0, len(spec.Handlers))

	for _, h := range spec.Handlers {
		if _, seen := graph[h.Name]; !seen {
			order = append(order, h.Name)
		}
		// Initialize with empty slice if no edges (ensures node exists in graph)
		if graph[h.Name] == nil {
			graph[h.Name] = []string{}
		}
		for _, w := range h.Writes {
			for _, other := range spec.Handlers {
				if reads[other.Expression][w.Status] && !slices.Contains(graph[h.Name], other.Name) {
					graph[h.Name] = append(graph[h.Name], other.Name)
				}
			}
		}
	}
	return graph, order
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of handler names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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

	// Visit all nodes in declaration order so output is stable
	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [name, name].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Handler re-triggers itself: %s → %s", name, name),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential write loop: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
