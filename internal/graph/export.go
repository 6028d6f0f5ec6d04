package graph

import (
	"fmt"
	"sort"
	"strings"
)

// ExportJSON returns the link graph's node paths and its (from, to) edges
// as plain slices; encoding them as JSON is left to the caller.
func (g *LinkGraph) ExportJSON() ([]string, [][2]string) {
	return g.Nodes(), g.Edges()
}

// ExportDOT renders the link graph as Graphviz DOT. Both graph kinds
// share the same export formats.
func (g *LinkGraph) ExportDOT() string {
	nodes, edges := g.ExportJSON()
	s := "digraph links {\n  rankdir=LR;\n"
	for _, n := range nodes {
		s += fmt.Sprintf("  %q;\n", n)
	}
	for _, e := range edges {
		s += fmt.Sprintf("  %q -> %q;\n", e[0], e[1])
	}
	return s + "}\n"
}

// ExportMermaid renders the link graph as a Mermaid "graph LR".
func (g *LinkGraph) ExportMermaid() string {
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

// ExportASCIITree renders the forest of nodes with indegree 0 as an ASCII
// tree, following children via outgoing edges. A node reached more than
// once is printed again each time, but its children are expanded only at
// the first visit.
func (g *LinkGraph) ExportASCIITree() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var roots []string
	for p, in := range g.in {
		if len(in) == 0 {
			roots = append(roots, p)
		}
	}
	sort.Strings(roots)

	var b strings.Builder
	visited := make(map[string]bool)
	var walk func(node string, prefix string, last bool)
	walk = func(node string, prefix string, last bool) {
		connector := "├── "
		if last {
			connector = "└── "
		}
		b.WriteString(prefix + connector + node + "\n")
		if visited[node] {
			return
		}
		visited[node] = true

		children := make([]string, 0, len(g.out[node]))
		for c := range g.out[node] {
			children = append(children, c)
		}
		sort.Strings(children)

		childPrefix := prefix + "│   "
		if last {
			childPrefix = prefix + "    "
		}
		for i, c := range children {
			walk(c, childPrefix, i == len(children)-1)
		}
	}
	for i, r := range roots {
		b.WriteString(r + "\n")
		children := make([]string, 0, len(g.out[r]))
		for c := range g.out[r] {
			children = append(children, c)
		}
		sort.Strings(children)
		for j, c := range children {
			walk(c, "", j == len(children)-1)
		}
		if i != len(roots)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
