package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/resmodel/internal/ir"
)

// BaseCycle reports attribute sets that compose each other in a loop.
type BaseCycle struct {
	Path    []string `json:"path"`    // Cycle path: ["set-a", "set-b", "set-a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeBaseCycles finds composition cycles between attribute sets.
//
// The algorithm:
//  1. Build set -> base dependency graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle
//
// Sets are visited in sorted order so the report is deterministic.
// An acyclic composition returns an empty list.
func AnalyzeBaseCycles(sets map[string]ir.AttributeSet) []BaseCycle {
	if len(sets) == 0 {
		return []BaseCycle{}
	}

	graph := make(dependencyGraph, len(sets))
	for name, set := range sets {
		graph[name] = append([]string{}, set.Bases...)
	}

	var cycles []BaseCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// dependencyGraph maps set name -> names of its bases.
type dependencyGraph map[string][]string

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of set names.
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

// sccToCycle converts an SCC to a BaseCycle.
func sccToCycle(scc []string, graph dependencyGraph) BaseCycle {
	if len(scc) == 1 {
		name := scc[0]
		return BaseCycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("attribute set composes itself: %s -> %s", name, name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return BaseCycle{
		Path:    path,
		Message: fmt.Sprintf("attribute set composition cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the smallest name in the SCC, follow edges to other
// SCC members, continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
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
