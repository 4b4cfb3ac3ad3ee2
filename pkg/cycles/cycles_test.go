package cycles

import (
	"slices"
	"testing"

	"github.com/ritzau/hesiod/pkg/graph"
)

func build(t *testing.T, keys []string, edges [][2]string) *graph.Graph {
	t.Helper()
	g := graph.New("test")
	for _, k := range keys {
		if err := g.AddNode(graph.NewNode(k, "t")); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	for i, e := range edges {
		// each edge gets its own port so parallel edges are kept
		port := string(rune('a' + i))
		if err := g.Connect(e[0], "out", e[1], port); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}
	return g
}

func TestFindCycles_NoCycles(t *testing.T) {
	g := build(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})

	cycles := FindCycles(g)

	if len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
}

func TestFindCycles_SimpleCycle(t *testing.T) {
	g := build(t, []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}})

	cycles := FindCycles(g)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}
	if !slices.Equal(cycles[0].Nodes, []string{"a", "b"}) {
		t.Errorf("Expected cycle [a b], got %v", cycles[0].Nodes)
	}
}

func TestFindCycles_MultipleCycles(t *testing.T) {
	g := build(t,
		[]string{"a", "b", "c", "d", "e", "f"},
		[][2]string{
			{"a", "b"}, {"b", "c"}, {"c", "a"}, // a-b-c
			{"d", "e"}, {"e", "d"}, // d-e
			{"c", "f"},
		})

	cycles := FindCycles(g)

	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, but found %d: %v", len(cycles), cycles)
	}
	if !slices.Equal(cycles[0].Nodes, []string{"a", "b", "c"}) {
		t.Errorf("Expected first cycle [a b c], got %v", cycles[0].Nodes)
	}
	if !slices.Equal(cycles[1].Nodes, []string{"d", "e"}) {
		t.Errorf("Expected second cycle [d e], got %v", cycles[1].Nodes)
	}
}

func TestFindCycles_SelfLoop(t *testing.T) {
	g := build(t, []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "b"}})

	cycles := FindCycles(g)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}
	if !slices.Equal(cycles[0].Nodes, []string{"b"}) {
		t.Errorf("Expected self loop on b, got %v", cycles[0].Nodes)
	}
}
