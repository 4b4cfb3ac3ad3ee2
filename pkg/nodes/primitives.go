package nodes

import (
	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
)

func primitiveNodes() []definition {
	scalarPort := func(name, description string) registry.PortSpec {
		return portSpec(name, "scalar", description)
	}
	return []definition{
		{
			handler:     constant,
			description: "Emit a scalar constant",
			metadata: registry.NodeMetadata{
				Type:     "primitives.constant",
				Label:    "Constant",
				Category: "Primitive",
				Outputs:  []registry.PortSpec{scalarPort("output", "Constant value")},
				Parameters: []registry.ParameterSpec{
					param("value", "float", value.Number(0), "Value emitted by the node."),
				},
				Description: "Emit a scalar constant value.",
				Tags:        []string{"primitive", "math"},
			},
		},
		{
			handler:     binary(0, func(a, b float64) float64 { return a + b }),
			description: "Add two scalar inputs",
			metadata: registry.NodeMetadata{
				Type:     "math.add",
				Label:    "Add",
				Category: "Math",
				Inputs:   []registry.PortSpec{scalarPort("lhs", "Left-hand value"), scalarPort("rhs", "Right-hand value")},
				Outputs:  []registry.PortSpec{scalarPort("output", "Sum of inputs")},
				Parameters: []registry.ParameterSpec{
					param("lhs", "float", value.Number(0), "Default left value"),
					param("rhs", "float", value.Number(0), "Default right value"),
				},
				Description: "Add two scalar values.",
				Tags:        []string{"primitive", "math"},
			},
		},
		{
			handler:     binary(1, func(a, b float64) float64 { return a * b }),
			description: "Multiply two scalar inputs",
			metadata: registry.NodeMetadata{
				Type:     "math.multiply",
				Label:    "Multiply",
				Category: "Math",
				Inputs:   []registry.PortSpec{scalarPort("lhs", "Left-hand value"), scalarPort("rhs", "Right-hand value")},
				Outputs:  []registry.PortSpec{scalarPort("output", "Product of inputs")},
				Parameters: []registry.ParameterSpec{
					param("lhs", "float", value.Number(1), "Default left value"),
					param("rhs", "float", value.Number(1), "Default right value"),
				},
				Description: "Multiply two scalar values.",
				Tags:        []string{"primitive", "math"},
			},
		},
	}
}

func constant(node *graph.Node, _ map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	return map[string]value.Value{"output": value.Number(number(node, "value", 0))}, nil
}

// binary builds a handler combining lhs and rhs. Wired inputs override the
// parameters; anything that is not a number falls back to def.
func binary(def float64, op func(a, b float64) float64) registry.HandlerFunc {
	return func(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
		lhs := scalarInput(node, inputs, "lhs", def)
		rhs := scalarInput(node, inputs, "rhs", def)
		return map[string]value.Value{"output": value.Number(op(lhs, rhs))}, nil
	}
}
