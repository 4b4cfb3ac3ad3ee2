// Package legacy converts project files written by the earlier .hsd tool
// into projects for the current runtime.
package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"sort"
	"strings"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/project"
	"github.com/ritzau/hesiod/pkg/value"
)

var ErrImport = errors.New("legacy import failed")

// NodeMap translates legacy node class names into registry types
var NodeMap = map[string]string{
	"ConstantNode": "primitives.constant",
	"AddNode":      "math.add",
	"MultiplyNode": "math.multiply",
}

// Report is the outcome of an import. Nodes whose legacy type has no mapping
// keep that type verbatim and are listed in Unsupported.
type Report struct {
	Project     *project.Project
	Unsupported []string
}

type document struct {
	Name        string                               `json:"name"`
	Nodes       []map[string]any                     `json:"nodes"`
	Connections map[string]map[string]map[string]any `json:"connections"`
	Metadata    map[string]any                       `json:"metadata"`
}

// Import reads and converts the legacy project at path. overrides extend or
// replace NodeMap entries.
func Import(path string, overrides map[string]string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImport, err)
	}
	report, err := Decode(data, overrides)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Info("legacy project imported", "path", path,
		"nodes", report.Project.Graph.Len(), "unsupported", len(report.Unsupported))
	return report, nil
}

// Decode converts a legacy document held in memory. The graph may sit at the
// top level or under a "graph" key.
func Decode(data []byte, overrides map[string]string) (*Report, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrImport, err)
	}
	var outer document
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrImport, err)
	}
	doc := outer
	if inner, ok := raw["graph"]; ok {
		doc = document{}
		if err := json.Unmarshal(inner, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse graph: %w", ErrImport, err)
		}
	}

	remap := maps.Clone(NodeMap)
	maps.Copy(remap, overrides)

	graphName := doc.Name
	if graphName == "" {
		graphName = "Legacy Graph"
	}
	g := graph.New(graphName)

	var unsupported []string
	for i, nd := range doc.Nodes {
		node, known, err := convertNode(nd, remap)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %w", ErrImport, i, err)
		}
		if !known {
			unsupported = append(unsupported, node.Type)
			logging.Warn("unsupported legacy node", "type", node.Type, "key", node.Key)
		}
		if err := g.AddNode(node); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImport, err)
		}
	}

	// sorted so the first reported error does not depend on map order
	targets := make([]string, 0, len(doc.Connections))
	for target := range doc.Connections {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		for port, conn := range doc.Connections[target] {
			source, ok := conn["source_node"]
			if !ok {
				return nil, fmt.Errorf("%w: connection %s.%s has no source_node", ErrImport, target, port)
			}
			sourcePort := "output"
			if p, ok := conn["source_port"]; ok {
				sourcePort = fmt.Sprint(p)
			}
			err := g.Connect(strings.ToLower(fmt.Sprint(source)), sourcePort, strings.ToLower(target), port)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrImport, err)
			}
		}
	}

	name := outer.Name
	if name == "" {
		name = graphName
	}
	p := project.New(name)
	p.Graph = g
	if outer.Metadata != nil {
		meta, err := value.FromAny(outer.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrImport, err)
		}
		p.Metadata, _ = meta.AsMap()
	}
	return &Report{Project: p, Unsupported: unsupported}, nil
}

func convertNode(nd map[string]any, remap map[string]string) (*graph.Node, bool, error) {
	legacyType := "Unknown"
	if t, ok := nd["type"]; ok && t != nil {
		legacyType = fmt.Sprint(t)
	}
	nodeType, known := remap[legacyType]
	if !known {
		nodeType = legacyType
	}

	title := legacyType
	if name, ok := nd["name"]; ok && name != nil {
		title = fmt.Sprint(name)
	}
	key := title
	for _, field := range []string{"id", "key"} {
		if v, ok := nd[field]; ok && v != nil && v != "" {
			key = fmt.Sprint(v)
			break
		}
	}

	node := graph.NewNode(strings.ToLower(key), nodeType)
	node.Title = title
	node.Metadata["legacy_type"] = value.Text(legacyType)

	if params, ok := nd["parameters"].(map[string]any); ok {
		for name, raw := range params {
			v, err := value.FromAny(raw)
			if err != nil {
				return nil, false, fmt.Errorf("parameter %q: %w", name, err)
			}
			node.Parameters[name] = v
		}
	}
	return node, known, nil
}
