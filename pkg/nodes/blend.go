package nodes

import (
	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
)

func blendNodes() []definition {
	return []definition{
		{
			handler:     linearBlend,
			description: "Linear blend between foreground and background heightmaps",
			metadata: registry.NodeMetadata{
				Type:     "blend.linear",
				Label:    "Linear Blend",
				Category: "Blend",
				Inputs: []registry.PortSpec{
					portSpec("foreground", "heightmap", "Foreground heightmap"),
					portSpec("background", "heightmap", "Background heightmap"),
				},
				Outputs: []registry.PortSpec{portSpec("heightmap", "heightmap", "Blended result")},
				Parameters: []registry.ParameterSpec{
					param("factor", "float", value.Number(0.5), "Weight of the foreground input (0..1)"),
				},
				Description: "Blend between foreground and background heightmaps using linear interpolation.",
				Tags:        []string{"blend", "heightmap"},
			},
		},
		{
			handler:     addBlend,
			description: "Add two heightmaps with optional scale and bias",
			metadata: registry.NodeMetadata{
				Type:     "blend.add",
				Label:    "Add",
				Category: "Blend",
				Inputs: []registry.PortSpec{
					portSpec("source_a", "heightmap", "First heightmap"),
					portSpec("source_b", "heightmap", "Second heightmap"),
				},
				Outputs: []registry.PortSpec{portSpec("heightmap", "heightmap", "Combined heightmap")},
				Parameters: []registry.ParameterSpec{
					param("scale", "float", value.Number(1), "Scale applied after addition"),
					param("bias", "float", value.Number(0), "Bias applied after scaling"),
				},
				Description: "Add two heightmaps with optional scale and bias.",
				Tags:        []string{"blend", "heightmap"},
			},
		},
	}
}

// pair decodes two same-sized heightmap inputs
func pair(node *graph.Node, inputs map[string]value.Value, a, b string) (*HeightMap, *HeightMap, error) {
	first, err := heightMapInput(node, inputs, a)
	if err != nil {
		return nil, nil, err
	}
	second, err := heightMapInput(node, inputs, b)
	if err != nil {
		return nil, nil, err
	}
	if err := sameShape(node, first, second); err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func linearBlend(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	fg, bg, err := pair(node, inputs, "foreground", "background")
	if err != nil {
		return nil, err
	}
	factor := clamp(number(node, "factor", 0.5), 0, 1)

	var data, back mat.Dense
	data.Scale(factor, fg.Data)
	back.Scale(1-factor, bg.Data)
	data.Add(&data, &back)

	blended := fg.derive(&data)
	blended.annotate("blend", map[string]value.Value{
		"mode":   value.Text("linear"),
		"factor": value.Number(factor),
	})
	return output("heightmap", blended)
}

func addBlend(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	a, b, err := pair(node, inputs, "source_a", "source_b")
	if err != nil {
		return nil, err
	}
	scale := number(node, "scale", 1)
	bias := number(node, "bias", 0)

	var sum mat.Dense
	sum.Add(a.Data, b.Data)
	blended := a.derive(&sum).apply(func(v float64) float64 { return v*scale + bias })
	blended.annotate("blend", map[string]value.Value{
		"mode":  value.Text("add"),
		"scale": value.Number(scale),
		"bias":  value.Number(bias),
	})
	return output("heightmap", blended)
}
