package graph

import "github.com/ritzau/hesiod/pkg/value"

// Port describes a named, typed input or output slot
type Port struct {
	Name     string
	DataType string
	IsOutput bool
}

// Connection identifies the upstream end of an edge. The downstream end is
// the (node, port) pair it is stored under.
type Connection struct {
	SourceNode string
	SourcePort string
}

// Node is one unit of computation in the graph
type Node struct {
	Key        string
	Type       string
	Title      string
	Parameters map[string]value.Value
	Metadata   map[string]value.Value
}

// NewNode creates a node with empty parameter and metadata maps
func NewNode(key, nodeType string) *Node {
	return &Node{
		Key:        key,
		Type:       nodeType,
		Parameters: map[string]value.Value{},
		Metadata:   map[string]value.Value{},
	}
}

// WithParameter sets a parameter and returns the node for chaining
func (n *Node) WithParameter(name string, v value.Value) *Node {
	if n.Parameters == nil {
		n.Parameters = map[string]value.Value{}
	}
	n.Parameters[name] = v
	return n
}

// UpdateParameters merges updates into the node's parameters. It does not
// mark the node dirty; callers owning the graph do that.
func (n *Node) UpdateParameters(updates map[string]value.Value) {
	if n.Parameters == nil {
		n.Parameters = make(map[string]value.Value, len(updates))
	}
	for k, v := range updates {
		n.Parameters[k] = v
	}
}

// Parameter returns the named parameter
func (n *Node) Parameter(name string) (value.Value, bool) {
	v, ok := n.Parameters[name]
	return v, ok
}
