// Package graph holds the mutable node graph: nodes keyed by string, port
// level connections, a reverse index of dependents and the dirty set.
package graph

import (
	"sort"

	"github.com/ritzau/hesiod/pkg/value"
)

// Graph is not safe for concurrent mutation. The runtime evaluates one graph
// per session and serializes access.
type Graph struct {
	Name     string
	Metadata map[string]value.Value

	nodes       map[string]*Node
	connections map[string]map[string]Connection // target -> port -> source
	dependents  map[string]map[string]struct{}   // source -> targets
	dirty       map[string]struct{}
}

// New creates an empty graph
func New(name string) *Graph {
	return &Graph{
		Name:        name,
		Metadata:    map[string]value.Value{},
		nodes:       make(map[string]*Node),
		connections: make(map[string]map[string]Connection),
		dependents:  make(map[string]map[string]struct{}),
		dirty:       make(map[string]struct{}),
	}
}

// AddNode inserts n and marks it dirty
func (g *Graph) AddNode(n *Node) error {
	if _, exists := g.nodes[n.Key]; exists {
		return duplicateKey(n.Key)
	}
	if n.Parameters == nil {
		n.Parameters = map[string]value.Value{}
	}
	if n.Metadata == nil {
		n.Metadata = map[string]value.Value{}
	}
	g.nodes[n.Key] = n
	g.connections[n.Key] = make(map[string]Connection)
	g.dependents[n.Key] = make(map[string]struct{})
	g.MarkDirty(n.Key)
	return nil
}

// RemoveNode deletes the node and every connection touching it. Former
// dependents are marked dirty.
func (g *Graph) RemoveNode(key string) error {
	if _, exists := g.nodes[key]; !exists {
		return unknownNode(key)
	}

	for target := range g.dependents[key] {
		if target == key {
			continue
		}
		for port, conn := range g.connections[target] {
			if conn.SourceNode == key {
				delete(g.connections[target], port)
			}
		}
		g.MarkDirty(target)
	}

	inputs := g.connections[key]
	delete(g.connections, key)
	for _, conn := range inputs {
		if deps, ok := g.dependents[conn.SourceNode]; ok {
			delete(deps, key)
		}
	}

	delete(g.dependents, key)
	delete(g.nodes, key)
	g.MarkDirty(key)
	return nil
}

// Node returns the node stored under key
func (g *Graph) Node(key string) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

func (g *Graph) HasNode(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

func (g *Graph) Len() int { return len(g.nodes) }

// Keys returns every node key in sorted order
func (g *Graph) Keys() []string {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Nodes returns every node ordered by key
func (g *Graph) Nodes() []*Node {
	keys := g.Keys()
	nodes := make([]*Node, len(keys))
	for i, k := range keys {
		nodes[i] = g.nodes[k]
	}
	return nodes
}

// Connect wires sourceNode.sourcePort into targetNode.targetPort, replacing
// any existing connection on that input. Both nodes must exist. Port names are
// not validated against node metadata; that happens when the node runs.
func (g *Graph) Connect(sourceNode, sourcePort, targetNode, targetPort string) error {
	if _, ok := g.nodes[sourceNode]; !ok {
		return unknownNode(sourceNode)
	}
	if _, ok := g.nodes[targetNode]; !ok {
		return unknownNode(targetNode)
	}

	ports := g.connections[targetNode]
	previous, replaced := ports[targetPort]
	ports[targetPort] = Connection{SourceNode: sourceNode, SourcePort: sourcePort}
	if replaced && previous.SourceNode != sourceNode {
		g.unlinkIfUnused(previous.SourceNode, targetNode)
	}
	g.dependents[sourceNode][targetNode] = struct{}{}
	g.MarkDirty(targetNode)
	return nil
}

// Disconnect removes the connection feeding targetNode.targetPort. Missing
// nodes or ports are ignored.
func (g *Graph) Disconnect(targetNode, targetPort string) {
	ports, ok := g.connections[targetNode]
	if !ok {
		return
	}
	conn, ok := ports[targetPort]
	if !ok {
		return
	}
	delete(ports, targetPort)
	g.unlinkIfUnused(conn.SourceNode, targetNode)
	g.MarkDirty(targetNode)
}

// unlinkIfUnused drops target from source's dependents unless another input
// port of target still reads from source.
func (g *Graph) unlinkIfUnused(source, target string) {
	for _, conn := range g.connections[target] {
		if conn.SourceNode == source {
			return
		}
	}
	if deps, ok := g.dependents[source]; ok {
		delete(deps, target)
	}
}

// InputsFor returns a copy of the node's input connections keyed by port
func (g *Graph) InputsFor(key string) map[string]Connection {
	ports := g.connections[key]
	out := make(map[string]Connection, len(ports))
	for port, conn := range ports {
		out[port] = conn
	}
	return out
}

// DependenciesOf returns the distinct upstream nodes of key, sorted
func (g *Graph) DependenciesOf(key string) []string {
	seen := make(map[string]struct{})
	for _, conn := range g.connections[key] {
		seen[conn.SourceNode] = struct{}{}
	}
	return sortedSet(seen)
}

// DependentsOf returns the distinct downstream nodes of key, sorted
func (g *Graph) DependentsOf(key string) []string {
	return sortedSet(g.dependents[key])
}

// MarkDirty flags key and its direct dependents. The cascade is one hop: a
// dependent's own dependents are not flagged.
func (g *Graph) MarkDirty(key string) {
	if _, ok := g.nodes[key]; !ok {
		return
	}
	g.dirty[key] = struct{}{}
	for target := range g.dependents[key] {
		g.dirty[target] = struct{}{}
	}
}

func (g *Graph) ClearDirty(key string) {
	delete(g.dirty, key)
}

func (g *Graph) IsDirty(key string) bool {
	_, ok := g.dirty[key]
	return ok
}

// Dirty returns a sorted snapshot of the dirty set
func (g *Graph) Dirty() []string {
	return sortedSet(g.dirty)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
