// Package cycles reports every cycle in a node graph, not just the first one
// found while ordering it.
package cycles

import (
	"sort"

	"github.com/ritzau/hesiod/pkg/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// Cycle is a set of nodes that depend on each other, sorted by key
type Cycle struct {
	Nodes []string `json:"nodes"`
}

// FindCycles returns the strongly connected components of g that contain a
// cycle, including nodes wired to themselves. Results are sorted by their
// first key.
func FindCycles(g *graph.Graph) []Cycle {
	view := g.View()

	cycles := make([]Cycle, 0, len(view.SelfLoops))
	inComponent := make(map[string]bool)
	for _, scc := range topo.TarjanSCC(view.Graph) {
		if len(scc) < 2 {
			continue
		}
		keys := make([]string, 0, len(scc))
		for _, n := range scc {
			key := view.Key(n.ID())
			keys = append(keys, key)
			inComponent[key] = true
		}
		sort.Strings(keys)
		cycles = append(cycles, Cycle{Nodes: keys})
	}

	// A self loop inside a larger component is already reported
	for _, key := range view.SelfLoops {
		if !inComponent[key] {
			cycles = append(cycles, Cycle{Nodes: []string{key}})
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Nodes[0] < cycles[j].Nodes[0] })
	return cycles
}
