package nodes

import (
	"fmt"
	"strings"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
)

var thresholdModes = map[string]func(v, t float64) bool{
	"greater":       func(v, t float64) bool { return v > t },
	"greater_equal": func(v, t float64) bool { return v >= t },
	"less":          func(v, t float64) bool { return v < t },
	"less_equal":    func(v, t float64) bool { return v <= t },
}

func maskNodes() []definition {
	mode := param("mode", "enum", value.Text("greater"), "Comparison mode")
	mode.Choices = []value.Value{
		value.Text("greater"), value.Text("greater_equal"), value.Text("less"), value.Text("less_equal"),
	}

	return []definition{
		{
			handler:     thresholdMask,
			description: "Generate a binary mask using threshold",
			metadata: registry.NodeMetadata{
				Type:     "mask.threshold",
				Label:    "Threshold",
				Category: "Mask",
				Inputs:   []registry.PortSpec{portSpec("source", "heightmap", "Source heightmap")},
				Outputs:  []registry.PortSpec{portSpec("mask", "mask", "Resulting mask")},
				Parameters: []registry.ParameterSpec{
					param("threshold", "float", value.Number(0.5), "Threshold value"),
					mode,
				},
				Description: "Create a binary mask by thresholding a heightmap.",
				Tags:        []string{"mask", "heightmap"},
			},
		},
		{
			handler:     invertMask,
			description: "Invert a mask",
			metadata: registry.NodeMetadata{
				Type:        "mask.invert",
				Label:       "Invert",
				Category:    "Mask",
				Inputs:      []registry.PortSpec{portSpec("mask", "mask", "Mask to invert")},
				Outputs:     []registry.PortSpec{portSpec("mask", "mask", "Inverted mask")},
				Description: "Invert a binary mask.",
				Tags:        []string{"mask"},
			},
		},
		{
			handler:     applyMask,
			description: "Apply a mask to a heightmap with optional fill value",
			metadata: registry.NodeMetadata{
				Type:     "mask.apply",
				Label:    "Apply Mask",
				Category: "Mask",
				Inputs: []registry.PortSpec{
					portSpec("source", "heightmap", "Heightmap to mask"),
					portSpec("mask", "mask", "Mask controlling blending"),
				},
				Outputs: []registry.PortSpec{portSpec("heightmap", "heightmap", "Masked heightmap")},
				Parameters: []registry.ParameterSpec{
					param("fill", "float", value.Number(0), "Value used where mask is zero"),
				},
				Description: "Apply a mask to a heightmap, filling masked areas with a value.",
				Tags:        []string{"mask", "heightmap"},
			},
		},
	}
}

func thresholdMask(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	threshold := number(node, "threshold", 0.5)
	mode := strings.ToLower(text(node, "mode", "greater"))
	compare, ok := thresholdModes[mode]
	if !ok {
		return nil, fmt.Errorf("node %q: mask.threshold mode must be one of greater, greater_equal, less, less_equal", node.Key)
	}

	mask := src.apply(func(v float64) float64 {
		if compare(v, threshold) {
			return 1
		}
		return 0
	})
	mask.annotate("mask", map[string]value.Value{
		"mode":      value.Text(mode),
		"threshold": value.Number(threshold),
	})
	return output("mask", mask)
}

func invertMask(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	mask, err := heightMapInput(node, inputs, "mask")
	if err != nil {
		return nil, err
	}
	inverted := mask.apply(func(v float64) float64 { return 1 - v })
	inverted.annotate("mask", map[string]value.Value{"inverted": value.Bool(true)})
	return output("mask", inverted)
}

func applyMask(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	src, mask, err := pair(node, inputs, "source", "mask")
	if err != nil {
		return nil, err
	}
	fill := number(node, "fill", 0)

	var data mat.Dense
	data.Apply(func(i, j int, v float64) float64 {
		m := clamp(mask.Data.At(i, j), 0, 1)
		return v*m + fill*(1-m)
	}, src.Data)

	masked := src.derive(&data)
	masked.annotate("mask", map[string]value.Value{
		"applied": value.Bool(true),
		"fill":    value.Number(fill),
	})
	return output("heightmap", masked)
}
