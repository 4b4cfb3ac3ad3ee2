package runtime

import (
	"testing"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/value"
)

func mustSign(t *testing.T, node *graph.Node, inputs map[string]value.Value) Signature {
	t.Helper()
	sig, err := ComputeSignature(node, inputs)
	if err != nil {
		t.Fatalf("ComputeSignature failed: %v", err)
	}
	return sig
}

func TestComputeSignature_Deterministic(t *testing.T) {
	node := graph.NewNode("n", "math.add").
		WithParameter("lhs", value.Number(1)).
		WithParameter("rhs", value.Number(2))
	inputs := map[string]value.Value{"lhs": value.Number(4), "rhs": value.Number(5)}

	a := mustSign(t, node, inputs)
	b := mustSign(t, node, map[string]value.Value{"rhs": value.Number(5), "lhs": value.Number(4)})

	if a != b {
		t.Errorf("Expected identical signatures, got %s and %s", a, b)
	}
	if a.IsZero() || len(a.String()) != 64 {
		t.Errorf("Unexpected signature %s", a)
	}
}

func TestComputeSignature_Sensitivity(t *testing.T) {
	base := mustSign(t, graph.NewNode("n", "t").WithParameter("p", value.Text("x")), nil)

	variants := map[string]Signature{
		"key":       mustSign(t, graph.NewNode("m", "t").WithParameter("p", value.Text("x")), nil),
		"type":      mustSign(t, graph.NewNode("n", "u").WithParameter("p", value.Text("x")), nil),
		"parameter": mustSign(t, graph.NewNode("n", "t").WithParameter("p", value.Text("y")), nil),
		"path":      mustSign(t, graph.NewNode("n", "t").WithParameter("p", value.Path("x")), nil),
		"inputs": mustSign(t, graph.NewNode("n", "t").WithParameter("p", value.Text("x")),
			map[string]value.Value{"in": value.Number(1)}),
	}

	for name, sig := range variants {
		if sig == base {
			t.Errorf("Expected a %s change to alter the signature", name)
		}
	}
}

func TestComputeSignature_LookalikeValues(t *testing.T) {
	sign := func(v value.Value) Signature {
		return mustSign(t, graph.NewNode("n", "t").WithParameter("p", v), nil)
	}
	if sign(value.Path("x")) == sign(value.Map(map[string]value.Value{"__path__": value.Text("x")})) {
		t.Error("Expected a path and a map holding its envelope to differ")
	}
	if sign(value.Text("\xff")) == sign(value.Text("\xfe")) {
		t.Error("Expected texts with distinct invalid bytes to differ")
	}
	if mustSign(t, graph.NewNode("\xff", "t"), nil) == mustSign(t, graph.NewNode("\xfe", "t"), nil) {
		t.Error("Expected node keys with distinct invalid bytes to differ")
	}
}

func TestComputeSignature_ArrayContents(t *testing.T) {
	node := graph.NewNode("n", "filter.box_blur")
	a, _ := value.FromFloat32s("heightmap", []int{1, 2}, []float32{0, 1}, nil)
	b, _ := value.FromFloat32s("heightmap", []int{1, 2}, []float32{0, 2}, nil)

	if mustSign(t, node, map[string]value.Value{"source": a}) == mustSign(t, node, map[string]value.Value{"source": b}) {
		t.Error("Expected array contents to affect the signature")
	}
}
