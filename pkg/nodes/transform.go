package nodes

import (
	"fmt"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
)

func transformNodes() []definition {
	source := []registry.PortSpec{portSpec("source", "heightmap", "Input heightmap")}
	return []definition{
		{
			handler:     scaleBias,
			description: "Apply scale and bias to a heightmap",
			metadata: registry.NodeMetadata{
				Type:     "transform.scale_bias",
				Label:    "Scale & Bias",
				Category: "Transform",
				Inputs:   source,
				Outputs:  []registry.PortSpec{portSpec("heightmap", "heightmap", "Scaled result")},
				Parameters: []registry.ParameterSpec{
					param("scale", "float", value.Number(1), "Multiplier applied to the input"),
					param("bias", "float", value.Number(0), "Bias added after scaling"),
				},
				Description: "Apply a linear scale and bias to a heightmap.",
				Tags:        []string{"transform", "heightmap"},
			},
		},
		{
			handler:     normalize,
			description: "Normalize heightmap to [min, max] range",
			metadata: registry.NodeMetadata{
				Type:     "transform.normalize",
				Label:    "Normalize",
				Category: "Transform",
				Inputs:   source,
				Outputs:  []registry.PortSpec{portSpec("heightmap", "heightmap", "Normalized heightmap")},
				Parameters: []registry.ParameterSpec{
					param("min", "float", value.Number(0), "Target minimum"),
					param("max", "float", value.Number(1), "Target maximum"),
				},
				Description: "Normalize a heightmap into a specified range.",
				Tags:        []string{"transform", "heightmap"},
			},
		},
	}
}

func scaleBias(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	scale := number(node, "scale", 1)
	bias := number(node, "bias", 0)

	out := src.apply(func(v float64) float64 { return v*scale + bias })
	out.annotate("transform", map[string]value.Value{
		"scale": value.Number(scale),
		"bias":  value.Number(bias),
	})
	return output("heightmap", out)
}

func normalize(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	lo := number(node, "min", 0)
	hi := number(node, "max", 1)
	if hi <= lo {
		return nil, fmt.Errorf("node %q: normalize requires max > min", node.Key)
	}

	cur, top := mat.Min(src.Data), mat.Max(src.Data)
	var out *HeightMap
	if isClose(top, cur) {
		out = src.apply(func(float64) float64 { return lo })
	} else {
		out = src.apply(func(v float64) float64 { return (v-cur)/(top-cur)*(hi-lo) + lo })
	}
	out.annotate("transform", map[string]value.Value{
		"normalized": value.Bool(true),
		"target_min": value.Number(lo),
		"target_max": value.Number(hi),
	})
	return output("heightmap", out)
}
