// Package registry maps node type names to the handlers that execute them
// and to the metadata editors use to present them.
package registry

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/value"
)

// ExecutionContext is what a handler sees of the running evaluation
type ExecutionContext interface {
	// Context carries cancellation and the evaluation ID for logging
	Context() context.Context

	// State is shared by every evaluation of the same session
	State() *State
}

// Handler executes one node. It receives the node with its parameters and
// the values wired into its input ports, and returns one value per output port.
type Handler interface {
	Execute(node *graph.Node, inputs map[string]value.Value, ec ExecutionContext) (map[string]value.Value, error)
}

// HandlerFunc adapts a plain function to Handler
type HandlerFunc func(node *graph.Node, inputs map[string]value.Value, ec ExecutionContext) (map[string]value.Value, error)

func (f HandlerFunc) Execute(node *graph.Node, inputs map[string]value.Value, ec ExecutionContext) (map[string]value.Value, error) {
	return f(node, inputs, ec)
}

// PortSpec documents one input or output port
type PortSpec struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Description string `json:"description,omitempty"`
}

// ParameterSpec documents one node parameter
type ParameterSpec struct {
	Name        string        `json:"name"`
	Type        string        `json:"param_type"`
	Default     value.Value   `json:"default"`
	Description string        `json:"description,omitempty"`
	Editor      string        `json:"editor,omitempty"`
	Choices     []value.Value `json:"choices,omitempty"`
}

// NodeMetadata describes a node type for editors and the web API
type NodeMetadata struct {
	Type        string          `json:"type"`
	Label       string          `json:"label"`
	Category    string          `json:"category"`
	Inputs      []PortSpec      `json:"inputs"`
	Outputs     []PortSpec      `json:"outputs"`
	Parameters  []ParameterSpec `json:"parameters"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	DocsURL     string          `json:"docs_url,omitempty"`
}

// Parameter returns the declaration of the named parameter
func (m *NodeMetadata) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Definition is a registered node type
type Definition struct {
	Type        string
	Handler     Handler
	Description string
	Metadata    *NodeMetadata
}

// Option configures a registration
type Option func(*Definition)

func WithDescription(description string) Option {
	return func(d *Definition) { d.Description = description }
}

func WithMetadata(m NodeMetadata) Option {
	return func(d *Definition) { d.Metadata = &m }
}

// Registry holds node definitions keyed by lower-cased type name. It is safe
// for concurrent lookups once populated.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	order []string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a handler under nodeType. Type names are case-insensitive.
func (r *Registry) Register(nodeType string, h Handler, opts ...Option) error {
	key := strings.ToLower(nodeType)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[key]; exists {
		return &Error{Kind: ErrDuplicateType, Type: nodeType}
	}
	def := &Definition{Type: nodeType, Handler: h}
	for _, opt := range opts {
		opt(def)
	}
	r.defs[key] = def
	r.order = append(r.order, key)
	return nil
}

// MustRegister is Register for static registration tables
func (r *Registry) MustRegister(nodeType string, h Handler, opts ...Option) {
	if err := r.Register(nodeType, h, opts...); err != nil {
		panic(err)
	}
}

// Get returns the definition for nodeType
func (r *Registry) Get(nodeType string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[strings.ToLower(nodeType)]
	if !ok {
		return nil, &Error{Kind: ErrUnknownType, Type: nodeType}
	}
	return def, nil
}

// Describe returns the metadata for nodeType
func (r *Registry) Describe(nodeType string) (*NodeMetadata, error) {
	def, err := r.Get(nodeType)
	if err != nil {
		return nil, err
	}
	if def.Metadata == nil {
		return nil, &Error{Kind: ErrMetadataUnavailable, Type: nodeType}
	}
	return def.Metadata, nil
}

// Has reports whether nodeType is registered
func (r *Registry) Has(nodeType string) bool {
	_, err := r.Get(nodeType)
	return err == nil
}

// Types returns the registered type names in registration order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, len(r.order))
	for i, key := range r.order {
		types[i] = r.defs[key].Type
	}
	return types
}

// Metadata yields the metadata of every definition that has some, in
// registration order. Definitions are looked up as the sequence advances.
func (r *Registry) Metadata() iter.Seq[*NodeMetadata] {
	return func(yield func(*NodeMetadata) bool) {
		r.mu.RLock()
		keys := make([]string, len(r.order))
		copy(keys, r.order)
		r.mu.RUnlock()

		for _, key := range keys {
			r.mu.RLock()
			def := r.defs[key]
			r.mu.RUnlock()

			if def == nil || def.Metadata == nil {
				continue
			}
			if !yield(def.Metadata) {
				return
			}
		}
	}
}
