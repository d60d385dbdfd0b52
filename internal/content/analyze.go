package content

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/simkernel/internal/lens"
	"github.com/roach88/simkernel/internal/world"
)

// CycleWarning reports property bindings that feed back into themselves.
//
// Bindings only push distinct values, so a cycle settles once values stop
// changing. It is still a warning because a cycle whose derivations never
// converge recurses until the publish depth limit.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// bindingGraph maps "address.Property" to the properties bound to it.
type bindingGraph map[string][]string

// AnalyzeBindings finds binding cycles in d as if it were expanded under
// parent. Unnamed simulants get placeholder names, so references into
// them cannot be followed. Stream templates are not analyzed.
func AnalyzeBindings(d Descriptor, parent world.Address) []CycleWarning {
	graph := make(bindingGraph)
	collectBindings(d, parent, 0, graph)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || slices.Contains(graph[scc[0]], scc[0]) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}
	return warnings
}

func collectBindings(d Descriptor, parent world.Address, index int, graph bindingGraph) {
	if d.IsFile() {
		return
	}
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("#%d", index)
	}
	self := parent.Child(name)
	for _, b := range d.Bindings {
		if lens.IsTableRef(b.Source) {
			continue
		}
		r, err := lens.ParseRef(b.Source)
		if err != nil {
			continue
		}
		src, err := r.Resolve(self)
		if err != nil {
			continue
		}
		from := src.String() + "." + r.Property
		to := self.String() + "." + b.Property
		graph[from] = append(graph[from], to)
		if _, ok := graph[to]; !ok {
			graph[to] = nil
		}
	}
	for i, c := range d.Children {
		collectBindings(c, self, i, graph)
	}
}

// tarjanSCC returns the strongly connected components of graph. Nodes and
// edges are visited in sorted order so results are reproducible.
func tarjanSCC(graph bindingGraph) [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var connect func(string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		next := slices.Clone(graph[v])
		slices.Sort(next)
		for _, u := range next {
			if _, seen := indices[u]; !seen {
				connect(u)
				lowlink[v] = min(lowlink[v], lowlink[u])
			} else if onStack[u] {
				lowlink[v] = min(lowlink[v], indices[u])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				u := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[u] = false
				scc = append(scc, u)
				if u == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			connect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph bindingGraph) CycleWarning {
	if len(scc) == 1 {
		return CycleWarning{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("property bound to itself: %s", scc[0]),
			Level:   "warning",
		}
	}
	path := cyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("binding cycle: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// cyclePath walks from the first member of scc along edges inside it
// until it returns to the start.
func cyclePath(scc []string, graph bindingGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	for cur := start; ; {
		next := ""
		edges := slices.Clone(graph[cur])
		slices.Sort(edges)
		for _, u := range edges {
			if members[u] && ((u == start && cur != start) || !visited[u]) {
				next = u
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		cur = next
	}
}
