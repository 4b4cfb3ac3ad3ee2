package graph

import (
	"errors"
	"slices"
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// View is a gonum projection of a node set. Edges point from dependency to
// dependent. Self loops cannot be represented in a simple graph and are listed
// separately.
type View struct {
	Graph     *simple.DirectedGraph
	Keys      []string // Keys[id] is the node key of gonum node id
	SelfLoops []string
}

// Key maps a gonum node ID back to the node key
func (v *View) Key(id int64) string {
	if id < 0 || int(id) >= len(v.Keys) {
		return ""
	}
	return v.Keys[id]
}

// View projects the whole graph
func (g *Graph) View() *View {
	return g.view(g.Keys())
}

func (g *Graph) view(keys []string) *View {
	v := &View{
		Graph: simple.NewDirectedGraph(),
		Keys:  keys,
	}
	ids := make(map[string]int64, len(keys))
	for i, k := range keys {
		ids[k] = int64(i)
		v.Graph.AddNode(simple.Node(i))
	}

	for _, target := range keys {
		targetID := ids[target]
		for _, conn := range g.connections[target] {
			sourceID, ok := ids[conn.SourceNode]
			if !ok {
				continue
			}
			if sourceID == targetID {
				v.SelfLoops = append(v.SelfLoops, target)
				continue
			}
			if !v.Graph.HasEdgeFromTo(sourceID, targetID) {
				v.Graph.SetEdge(v.Graph.NewEdge(v.Graph.Node(sourceID), v.Graph.Node(targetID)))
			}
		}
	}
	slices.Sort(v.SelfLoops)
	v.SelfLoops = slices.Compact(v.SelfLoops)
	return v
}

// TopologicalOrder orders node keys so that every node follows all of its
// dependencies. A nil limitTo orders the whole graph. Otherwise unknown keys
// in limitTo are ignored and the result covers the known keys plus their
// transitive dependencies. Ties are broken by key so the order is stable.
func (g *Graph) TopologicalOrder(limitTo []string) ([]string, error) {
	var keys []string
	if limitTo == nil {
		keys = g.Keys()
	} else {
		keys = g.closure(limitTo)
	}
	if len(keys) == 0 {
		return []string{}, nil
	}

	v := g.view(keys)
	if len(v.SelfLoops) > 0 {
		return nil, &Error{Kind: ErrCycleDetected, Nodes: v.SelfLoops}
	}

	sorted, err := topo.SortStabilized(v.Graph, byID)
	if err != nil {
		var unorderable topo.Unorderable
		if errors.As(err, &unorderable) {
			var members []string
			for _, component := range unorderable {
				for _, n := range component {
					members = append(members, v.Key(n.ID()))
				}
			}
			sort.Strings(members)
			return nil, &Error{Kind: ErrCycleDetected, Nodes: members}
		}
		return nil, err
	}

	order := make([]string, len(sorted))
	for i, n := range sorted {
		order[i] = v.Key(n.ID())
	}
	return order, nil
}

// closure collects the known keys of roots and everything they depend on,
// sorted.
func (g *Graph) closure(roots []string) []string {
	seen := make(map[string]struct{})
	stack := make([]string, 0, len(roots))
	for _, k := range roots {
		if _, ok := g.nodes[k]; ok {
			stack = append(stack, k)
		}
	}
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, done := seen[k]; done {
			continue
		}
		seen[k] = struct{}{}
		for _, conn := range g.connections[k] {
			if _, done := seen[conn.SourceNode]; !done {
				stack = append(stack, conn.SourceNode)
			}
		}
	}
	return sortedSet(seen)
}

func byID(nodes []gonum.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}
