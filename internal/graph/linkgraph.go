// Package graph implements the two dependency graphs the engine owns:
// the content-link graph (keyed by path, edge = "links to") and the task
// graph (keyed by task ID, edge = "depends on"). Both are adjacency-map
// directed graphs guarded by a single mutex.
package graph

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/errs"
)

// LinkGraph is the content-link graph. Nodes are
// workspace-relative paths; an edge A->B means "A links to B".
type LinkGraph struct {
	mu sync.RWMutex

	out   map[string]map[string]struct{}
	in    map[string]map[string]struct{}
	links map[string][]string // raw outgoing link targets per node, for rebuild

	byFilename map[string]string // lowercased basename/stem -> path
	bySlug     map[string]string // title-slug -> path
}

// NewLinkGraph returns an empty link graph.
func NewLinkGraph() *LinkGraph {
	return &LinkGraph{
		out:        make(map[string]map[string]struct{}),
		in:         make(map[string]map[string]struct{}),
		links:      make(map[string][]string),
		byFilename: make(map[string]string),
		bySlug:     make(map[string]string),
	}
}

// Build replaces the graph's contents with one built from docs: insert
// every node, build the filename and title-slug indexes, then resolve and
// add edges.
func (g *LinkGraph) Build(docs []card.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.out = make(map[string]map[string]struct{})
	g.in = make(map[string]map[string]struct{})
	g.links = make(map[string][]string)
	g.byFilename = make(map[string]string)
	g.bySlug = make(map[string]string)

	for _, d := range docs {
		g.addNodeLocked(d.Path)
		g.indexReverseLookupsLocked(d)
	}
	for _, d := range docs {
		g.links[d.Path] = append([]string(nil), d.Links...)
		g.rebuildEdgesLocked(d.Path)
	}
}

func (g *LinkGraph) addNodeLocked(p string) {
	if _, ok := g.out[p]; !ok {
		g.out[p] = make(map[string]struct{})
	}
	if _, ok := g.in[p]; !ok {
		g.in[p] = make(map[string]struct{})
	}
}

func (g *LinkGraph) indexReverseLookupsLocked(d card.Document) {
	base := path.Base(d.Path)
	lower := strings.ToLower(base)
	g.byFilename[lower] = d.Path
	g.byFilename[strings.TrimSuffix(lower, path.Ext(lower))] = d.Path

	if d.Frontmatter != nil && d.Frontmatter.Title != "" {
		g.bySlug[slugifyTitle(d.Frontmatter.Title)] = d.Path
	}
}

func slugifyTitle(title string) string {
	lower := strings.ToLower(title)
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// rebuildEdgesLocked clears then re-adds every outgoing edge for src,
// resolving each raw link target the way spec §4.5 step 3 specifies.
func (g *LinkGraph) rebuildEdgesLocked(src string) {
	for tgt := range g.out[src] {
		delete(g.in[tgt], src)
	}
	g.out[src] = make(map[string]struct{})

	for _, raw := range g.links[src] {
		target, ok := g.resolveLocked(src, raw)
		if !ok {
			continue
		}
		if _, exists := g.out[target]; !exists {
			continue // target must be a current node
		}
		g.out[src][target] = struct{}{}
		g.in[target][src] = struct{}{}
	}
}

func (g *LinkGraph) resolveLocked(src, raw string) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../"):
		dir := path.Dir(src)
		return path.Clean(path.Join(dir, raw)), true
	case strings.Contains(raw, "/"):
		return raw, true
	default:
		lower := strings.ToLower(raw)
		if p, ok := g.byFilename[lower]; ok {
			return p, true
		}
		if p, ok := g.byFilename[strings.TrimSuffix(lower, path.Ext(lower))]; ok {
			return p, true
		}
		if p, ok := g.bySlug[slugifyTitle(raw)]; ok {
			return p, true
		}
		return "", false
	}
}

// AddOrUpdateDocument upserts a single node, then rebuilds the outgoing
// edges of every node in the graph.
func (g *LinkGraph) AddOrUpdateDocument(d card.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(d.Path)
	g.indexReverseLookupsLocked(d)
	g.links[d.Path] = append([]string(nil), d.Links...)
	g.rebuildEdgesLocked(d.Path)
	// Other nodes may have had an unresolved link that now resolves to the
	// newly-added/renamed node; re-resolve every node's edges against the
	// updated indexes so forward references heal.
	for p := range g.out {
		if p != d.Path {
			g.rebuildEdgesLocked(p)
		}
	}
}

// RemoveDocument removes path's node and every incident edge. Filename
// index entries for path are pruned; the slug index may retain stale
// entries.
func (g *LinkGraph) RemoveDocument(p string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for tgt := range g.out[p] {
		delete(g.in[tgt], p)
	}
	for src := range g.in[p] {
		delete(g.out[src], p)
	}
	delete(g.out, p)
	delete(g.in, p)
	delete(g.links, p)

	base := strings.ToLower(path.Base(p))
	if g.byFilename[base] == p {
		delete(g.byFilename, base)
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if g.byFilename[stem] == p {
		delete(g.byFilename, stem)
	}
}

// Nodes returns every current node path.
func (g *LinkGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.out))
	for p := range g.out {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Edges returns every (from, to) pair.
func (g *LinkGraph) Edges() [][2]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out [][2]string
	for from, targets := range g.out {
		for to := range targets {
			out = append(out, [2]string{from, to})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Orphans returns nodes with indegree 0.
func (g *LinkGraph) Orphans() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for p, in := range g.in {
		if len(in) == 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// DetectCycle reports whether the graph has a cycle and, if so, a concrete
// path through it.
func (g *LinkGraph) DetectCycle() (bool, []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return detectCycle(g.out)
}

// TopologicalSort returns a dependency-first permutation of all nodes:
// for every edge A->B, B precedes A.
func (g *LinkGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return topoSort(g.out)
}

// Stats is the link graph's {node_count, edge_count, has_cycles} summary.
type Stats struct {
	NodeCount int
	EdgeCount int
	HasCycles bool
}

// Stats computes the current summary.
func (g *LinkGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := 0
	for _, m := range g.out {
		edges += len(m)
	}
	hasCycle, _ := detectCycle(g.out)
	return Stats{NodeCount: len(g.out), EdgeCount: edges, HasCycles: hasCycle}
}

// detectCycle runs a DFS over adj, returning the first back-edge found as
// a concrete path. Nodes and their targets are visited in sorted order, so
// the same graph always yields the same reported cycle.
func detectCycle(adj map[string]map[string]struct{}) (bool, []string) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(adj))
	var stack []string

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var dfs func(string) []string
	dfs = func(n string) []string {
		color[n] = gray
		stack = append(stack, n)

		targets := make([]string, 0, len(adj[n]))
		for t := range adj[n] {
			targets = append(targets, t)
		}
		sort.Strings(targets)

		for _, t := range targets {
			switch color[t] {
			case white:
				if cyc := dfs(t); cyc != nil {
					return cyc
				}
			case gray:
				// Found the back-edge; build the cycle path from t's
				// position in stack through n, then back to t.
				start := -1
				for i, s := range stack {
					if s == t {
						start = i
						break
					}
				}
				cyc := append([]string(nil), stack[start:]...)
				cyc = append(cyc, t)
				return cyc
			}
		}

		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range nodes {
		if color[n] == white {
			if cyc := dfs(n); cyc != nil {
				return true, cyc
			}
		}
	}
	return false, nil
}

// topoSort returns a dependency-first ordering or a *errs.CycleError.
func topoSort(adj map[string]map[string]struct{}) ([]string, error) {
	if has, cyc := detectCycle(adj); has {
		return nil, &errs.CycleError{Path: cyc}
	}

	const (
		unvisited = 0
		visited   = 1
	)
	state := make(map[string]int, len(adj))
	order := make([]string, 0, len(adj))

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var visit func(string)
	visit = func(n string) {
		if state[n] == visited {
			return
		}
		state[n] = visited
		targets := make([]string, 0, len(adj[n]))
		for t := range adj[n] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			visit(t)
		}
		order = append(order, n) // dependencies already appended, so n goes last among its deps
	}
	for _, n := range nodes {
		visit(n)
	}
	return order, nil
}
