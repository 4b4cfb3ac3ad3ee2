package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/value"
)

var valueComparer = cmp.Comparer(value.Equal)

type snapshot struct {
	Name        string
	Metadata    map[string]value.Value
	Nodes       []*graph.Node
	Connections map[string]map[string]graph.Connection
}

func snap(g *graph.Graph) snapshot {
	s := snapshot{
		Name:        g.Name,
		Metadata:    g.Metadata,
		Nodes:       g.Nodes(),
		Connections: map[string]map[string]graph.Connection{},
	}
	for _, key := range g.Keys() {
		if inputs := g.InputsFor(key); len(inputs) > 0 {
			s.Connections[key] = inputs
		}
	}
	return s
}

func sample(t *testing.T) *Project {
	t.Helper()
	p := New("terrain")
	p.Metadata["author"] = value.Text("ritzau")
	p.Configuration["memoization"] = value.Bool(true)
	p.RegisterAsset("base", "assets/base.png")

	noise := graph.NewNode("noise", "noise.uniform").
		WithParameter("width", value.Number(64)).
		WithParameter("seed", value.Number(3))
	noise.Title = "Base noise"
	blur := graph.NewNode("blur", "filter.box_blur").WithParameter("kernel_size", value.Number(5))
	export := graph.NewNode("export", "export.heightmap").
		WithParameter("path", value.Path("out/height.png")).
		WithParameter("min", value.Null())
	export.Metadata["position"] = value.List(value.Number(10), value.Number(20))

	for _, n := range []*graph.Node{noise, blur, export} {
		if err := p.Graph.AddNode(n); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := p.Graph.Connect("noise", "heightmap", "blur", "source"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Graph.Connect("blur", "heightmap", "export", "source"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return p
}

func TestMarshal_RoundTrip(t *testing.T) {
	original := sample(t)

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if diff := cmp.Diff(snap(original.Graph), snap(decoded.Graph), valueComparer); diff != "" {
		t.Errorf("Graph changed in round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Assets, decoded.Assets); diff != "" {
		t.Errorf("Assets changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Metadata, decoded.Metadata, valueComparer); diff != "" {
		t.Errorf("Metadata changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Configuration, decoded.Configuration, valueComparer); diff != "" {
		t.Errorf("Configuration changed (-want +got):\n%s", diff)
	}

	path, _ := decoded.Graph.Node("export")
	if p, ok := path.Parameters["path"].AsPath(); !ok || p != "out/height.png" {
		t.Errorf("Expected path parameter to stay a path, got %v", path.Parameters["path"])
	}
}

func TestMarshal_Format(t *testing.T) {
	data, err := Marshal(sample(t))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"version": "1.0"`, `"source_node": "noise"`, `"$path": "out/height.png"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected document to contain %s", want)
		}
	}
}

func TestUnmarshal_Defaults(t *testing.T) {
	p, err := Unmarshal([]byte(`{"graph": {"nodes": [{"key": "c", "type": "primitives.constant"}]}}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Name != "Untitled" || p.Graph.Name != "Graph" {
		t.Errorf("Expected default names, got %q and %q", p.Name, p.Graph.Name)
	}
	if !p.Graph.IsDirty("c") {
		t.Error("Expected loaded nodes to start dirty")
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want error
	}{
		"version": {`{"version": "2.0"}`, ErrUnsupportedVersion},
		"duplicate": {`{"graph": {"nodes": [
			{"key": "a", "type": "t"}, {"key": "a", "type": "t"}]}}`, graph.ErrDuplicateKey},
		"unknown source": {`{"graph": {"nodes": [{"key": "a", "type": "t"}],
			"connections": {"a": {"in": {"source_node": "ghost", "source_port": "out"}}}}}`, graph.ErrUnknownNode},
	}
	for name, c := range cases {
		_, err := Unmarshal([]byte(c.doc))
		if !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", name, c.want, err)
		}
	}

	if _, err := Unmarshal([]byte(`{"graph": {"nodes": [{"key": "a"}]}}`)); err == nil {
		t.Error("Expected an error for a node without a type")
	}
	if _, err := Unmarshal([]byte(`not json`)); err == nil {
		t.Error("Expected an error for malformed JSON")
	}
}

func TestGraphCodec(t *testing.T) {
	g := sample(t).Graph

	data, err := EncodeGraph(g)
	if err != nil {
		t.Fatalf("EncodeGraph failed: %v", err)
	}
	decoded, err := DecodeGraph(data)
	if err != nil {
		t.Fatalf("DecodeGraph failed: %v", err)
	}

	if diff := cmp.Diff(snap(g), snap(decoded), valueComparer); diff != "" {
		t.Errorf("Graph changed (-want +got):\n%s", diff)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects", "terrain.json")
	original := sample(t)

	if err := Save(original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected only the project file, got %d entries", len(entries))
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(snap(original.Graph), snap(loaded.Graph), valueComparer); diff != "" {
		t.Errorf("Graph changed (-want +got):\n%s", diff)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}
