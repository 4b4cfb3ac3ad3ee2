// Package project persists a node graph together with its assets and
// metadata as a versioned JSON document.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/value"
)

// Version is written into every saved document
const Version = "1.0"

var ErrUnsupportedVersion = errors.New("unsupported project version")

// Project is the unit that is loaded, edited, evaluated and saved
type Project struct {
	Name     string
	Graph    *graph.Graph
	Assets   map[string]string
	Metadata map[string]value.Value

	// Configuration is carried through load and save untouched
	Configuration map[string]value.Value
}

// New creates an empty project with a graph of the same name
func New(name string) *Project {
	return &Project{
		Name:          name,
		Graph:         graph.New(name),
		Assets:        map[string]string{},
		Metadata:      map[string]value.Value{},
		Configuration: map[string]value.Value{},
	}
}

// RegisterAsset records a named file the project refers to
func (p *Project) RegisterAsset(key, path string) {
	if p.Assets == nil {
		p.Assets = map[string]string{}
	}
	p.Assets[key] = path
}

type document struct {
	Version       string                 `json:"version"`
	Name          string                 `json:"name"`
	Configuration map[string]value.Value `json:"configuration,omitempty"`
	Graph         *graphDocument         `json:"graph"`
	Assets        map[string]string      `json:"assets"`
	Metadata      map[string]value.Value `json:"metadata"`
}

type graphDocument struct {
	Name        string                                   `json:"name"`
	Metadata    map[string]value.Value                   `json:"metadata"`
	Nodes       []nodeDocument                           `json:"nodes"`
	Connections map[string]map[string]connectionDocument `json:"connections"`
}

type nodeDocument struct {
	Key        string                 `json:"key"`
	Type       string                 `json:"type"`
	Title      string                 `json:"title,omitempty"`
	Parameters map[string]value.Value `json:"parameters"`
	Metadata   map[string]value.Value `json:"metadata"`
}

type connectionDocument struct {
	SourceNode string `json:"source_node"`
	SourcePort string `json:"source_port"`
}

// Marshal encodes p as an indented JSON document
func Marshal(p *Project) ([]byte, error) {
	doc := document{
		Version:       Version,
		Name:          p.Name,
		Configuration: p.Configuration,
		Graph:         encodeGraph(p.Graph),
		Assets:        nonNil(p.Assets),
		Metadata:      nonNil(p.Metadata),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal decodes a project document. Nodes are added before connections
// are made, so a bad topology is reported as a graph error.
func Unmarshal(data []byte) (*Project, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if doc.Version != "" && !strings.HasPrefix(doc.Version, "1.") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.Version)
	}

	g, err := decodeGraph(doc.Graph)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Name:          doc.Name,
		Graph:         g,
		Assets:        nonNil(doc.Assets),
		Metadata:      nonNil(doc.Metadata),
		Configuration: nonNil(doc.Configuration),
	}
	if p.Name == "" {
		p.Name = "Untitled"
	}
	return p, nil
}

// EncodeGraph returns the JSON form of g alone
func EncodeGraph(g *graph.Graph) ([]byte, error) {
	return json.Marshal(encodeGraph(g))
}

// DecodeGraph rebuilds a graph from the JSON produced by EncodeGraph
func DecodeGraph(data []byte) (*graph.Graph, error) {
	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return decodeGraph(&doc)
}

func encodeGraph(g *graph.Graph) *graphDocument {
	doc := &graphDocument{
		Name:        g.Name,
		Metadata:    nonNil(g.Metadata),
		Nodes:       []nodeDocument{},
		Connections: map[string]map[string]connectionDocument{},
	}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeDocument{
			Key:        n.Key,
			Type:       n.Type,
			Title:      n.Title,
			Parameters: nonNil(n.Parameters),
			Metadata:   nonNil(n.Metadata),
		})

		ports := map[string]connectionDocument{}
		for port, conn := range g.InputsFor(n.Key) {
			ports[port] = connectionDocument{SourceNode: conn.SourceNode, SourcePort: conn.SourcePort}
		}
		doc.Connections[n.Key] = ports
	}
	return doc
}

func decodeGraph(doc *graphDocument) (*graph.Graph, error) {
	if doc == nil {
		doc = &graphDocument{}
	}
	name := doc.Name
	if name == "" {
		name = "Graph"
	}
	g := graph.New(name)
	if doc.Metadata != nil {
		g.Metadata = doc.Metadata
	}

	for i, nd := range doc.Nodes {
		if nd.Key == "" || nd.Type == "" {
			return nil, fmt.Errorf("node %d: key and type are required", i)
		}
		n := graph.NewNode(nd.Key, nd.Type)
		n.Title = nd.Title
		n.Parameters = nonNil(nd.Parameters)
		n.Metadata = nonNil(nd.Metadata)
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	for target, ports := range doc.Connections {
		for port, conn := range ports {
			if conn.SourceNode == "" || conn.SourcePort == "" {
				return nil, fmt.Errorf("connection %s.%s: source_node and source_port are required", target, port)
			}
			if err := g.Connect(conn.SourceNode, conn.SourcePort, target, port); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Load reads a project document from path
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Debug("project loaded", "path", path, "name", p.Name, "nodes", p.Graph.Len())
	return p, nil
}

// Save writes p to path through a temporary file so readers never observe a
// partial document
func Save(p *Project, path string) error {
	data, err := Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".hesiod-*.json")
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("save project: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	logging.Debug("project saved", "path", path, "nodes", p.Graph.Len())
	return nil
}

func nonNil[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
