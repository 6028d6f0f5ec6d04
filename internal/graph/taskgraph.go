package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuedeck/cue/internal/errs"
)

// TaskGraph is the task-id graph. Nodes are task IDs (card
// file stems); an edge A->B means "A depends on B".
type TaskGraph struct {
	mu  sync.RWMutex
	out map[string]map[string]struct{}
	in  map[string]map[string]struct{}
}

// NewTaskGraph returns an empty task graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{
		out: make(map[string]map[string]struct{}),
		in:  make(map[string]map[string]struct{}),
	}
}

// AddTask upserts a node with no edges, if not already present.
func (g *TaskGraph) AddTask(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addTaskLocked(id)
}

func (g *TaskGraph) addTaskLocked(id string) {
	if _, ok := g.out[id]; !ok {
		g.out[id] = make(map[string]struct{})
	}
	if _, ok := g.in[id]; !ok {
		g.in[id] = make(map[string]struct{})
	}
}

// SetDependencies replaces id's full set of outgoing "depends on" edges.
func (g *TaskGraph) SetDependencies(id string, dependsOn []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addTaskLocked(id)
	for dep := range g.out[id] {
		delete(g.in[dep], id)
	}
	g.out[id] = make(map[string]struct{})
	for _, dep := range dependsOn {
		g.addTaskLocked(dep)
		g.out[id][dep] = struct{}{}
		g.in[dep][id] = struct{}{}
	}
}

// RemoveTask removes id and every incident edge.
func (g *TaskGraph) RemoveTask(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for dep := range g.out[id] {
		delete(g.in[dep], id)
	}
	for dependent := range g.in[id] {
		delete(g.out[dependent], id)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// GetDependencies returns what id directly depends on.
func (g *TaskGraph) GetDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.out[id]))
	for d := range g.out[id] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// GetDependents returns what directly depends on id.
func (g *TaskGraph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.in[id]))
	for d := range g.in[id] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ValidateDependencies returns a *errs.CycleError if the graph has a
// cycle, nil otherwise.
func (g *TaskGraph) ValidateDependencies() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if has, cyc := detectCycle(g.out); has {
		return &errs.CycleError{Path: cyc}
	}
	return nil
}

// WouldCreateCycle reports whether adding edge from->to would make the
// graph cyclic, without mutating it.
func (g *TaskGraph) WouldCreateCycle(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if from == to {
		return true
	}
	// to can reach from already => adding from->to closes a cycle.
	visited := make(map[string]bool)
	var dfs func(string) bool
	dfs = func(n string) bool {
		if n == from {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for t := range g.out[n] {
			if dfs(t) {
				return true
			}
		}
		return false
	}
	return dfs(to)
}

// TopologicalSort returns a dependency-first ordering or a *errs.CycleError.
func (g *TaskGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return topoSort(g.out)
}

// Orphans returns nodes with both indegree and outdegree 0.
func (g *TaskGraph) Orphans() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for id := range g.out {
		if len(g.out[id]) == 0 && len(g.in[id]) == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TaskStats is the {total_tasks, total_dependencies, orphaned_tasks,
// tasks_with_dependencies, max_dependency_depth} summary.
type TaskStats struct {
	TotalTasks            int
	TotalDependencies      int
	OrphanedTasks          int
	TasksWithDependencies  int
	MaxDependencyDepth     int
}

// Stats computes the current summary.
func (g *TaskGraph) Stats() TaskStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var st TaskStats
	st.TotalTasks = len(g.out)
	for id, deps := range g.out {
		st.TotalDependencies += len(deps)
		if len(deps) > 0 {
			st.TasksWithDependencies++
		}
		if len(deps) == 0 && len(g.in[id]) == 0 {
			st.OrphanedTasks++
		}
	}
	st.MaxDependencyDepth = maxDepth(g.out)
	return st
}

// maxDepth is the longest path length from any node, found by a
// depth-first walk (longestFrom) from every node with unit edge weights.
func maxDepth(adj map[string]map[string]struct{}) int {
	best := 0
	for n := range adj {
		d := longestFrom(n, adj, make(map[string]bool))
		if d > best {
			best = d
		}
	}
	return best
}

func longestFrom(n string, adj map[string]map[string]struct{}, onStack map[string]bool) int {
	if onStack[n] {
		return 0 // cyclic; caller is expected to have validated acyclicity first
	}
	onStack[n] = true
	defer delete(onStack, n)

	best := 0
	for t := range adj[n] {
		d := 1 + longestFrom(t, adj, onStack)
		if d > best {
			best = d
		}
	}
	return best
}

// --- Export formats ---

// ExportJSON returns the task graph's node IDs and its (from, to) edges as
// plain slices; encoding them as JSON is left to the caller.
func (g *TaskGraph) ExportJSON() ([]string, [][2]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]string, 0, len(g.out))
	for n := range g.out {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	var edges [][2]string
	for from, tos := range g.out {
		for to := range tos {
			edges = append(edges, [2]string{from, to})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return nodes, edges
}

// ExportDOT renders "digraph … rankdir=LR".
func (g *TaskGraph) ExportDOT() string {
	nodes, edges := g.ExportJSON()
	s := "digraph tasks {\n  rankdir=LR;\n"
	for _, n := range nodes {
		s += fmt.Sprintf("  %q;\n", n)
	}
	for _, e := range edges {
		s += fmt.Sprintf("  %q -> %q;\n", e[0], e[1])
	}
	return s + "}\n"
}

// ExportMermaid renders "graph LR" with node ids sanitized to [A-Za-z0-9_].
func (g *TaskGraph) ExportMermaid() string {
	nodes, edges := g.ExportJSON()
	s := "graph LR\n"
	for _, n := range nodes {
		s += fmt.Sprintf("  %s[%q]\n", sanitizeMermaidID(n), n)
	}
	for _, e := range edges {
		s += fmt.Sprintf("  %s --> %s\n", sanitizeMermaidID(e[0]), sanitizeMermaidID(e[1]))
	}
	return s
}

func sanitizeMermaidID(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
