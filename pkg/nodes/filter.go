package nodes

import (
	"fmt"
	"math"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
)

func filterNodes() []definition {
	source := []registry.PortSpec{portSpec("source", "heightmap", "Input heightmap")}
	blurred := []registry.PortSpec{portSpec("heightmap", "heightmap", "Blurred heightmap")}
	return []definition{
		{
			handler:     boxBlur,
			description: "Apply a mean blur using a square kernel",
			metadata: registry.NodeMetadata{
				Type:     "filter.box_blur",
				Label:    "Box Blur",
				Category: "Filter",
				Inputs:   source,
				Outputs:  blurred,
				Parameters: []registry.ParameterSpec{
					param("kernel_size", "int", value.Number(3), "Odd-sized kernel width/height"),
				},
				Description: "Apply a mean blur using a square kernel.",
				Tags:        []string{"filter", "heightmap"},
			},
		},
		{
			handler:     gaussianBlur,
			description: "Apply a Gaussian blur",
			metadata: registry.NodeMetadata{
				Type:     "filter.gaussian_blur",
				Label:    "Gaussian Blur",
				Category: "Filter",
				Inputs:   source,
				Outputs:  blurred,
				Parameters: []registry.ParameterSpec{
					param("kernel_size", "int", value.Number(5), "Odd-sized kernel width/height"),
					param("sigma", "float", value.Null(), "Gaussian standard deviation"),
				},
				Description: "Apply a Gaussian blur to smooth the heightmap.",
				Tags:        []string{"filter", "heightmap"},
			},
		},
	}
}

func kernelSize(node *graph.Node, def int) (int, error) {
	size := integer(node, "kernel_size", def)
	if size <= 0 || size%2 == 0 {
		return 0, fmt.Errorf("node %q: %s requires a positive odd kernel_size", node.Key, node.Type)
	}
	return size, nil
}

func boxBlur(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	size, err := kernelSize(node, 3)
	if err != nil {
		return nil, err
	}

	kernel := mat.NewDense(size, size, nil)
	kernel.Apply(func(_, _ int, _ float64) float64 { return 1 }, kernel)
	data, err := convolve(src.Data, kernel)
	if err != nil {
		return nil, err
	}

	out := src.derive(data)
	out.annotate("filter", map[string]value.Value{
		"mode":        value.Text("box"),
		"kernel_size": value.Number(float64(size)),
	})
	return output("heightmap", out)
}

func gaussianBlur(node *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	size, err := kernelSize(node, 5)
	if err != nil {
		return nil, err
	}
	sigma := number(node, "sigma", max(float64(size)/3, 1))
	if sigma <= 0 {
		return nil, fmt.Errorf("node %q: gaussian blur requires sigma > 0", node.Key)
	}

	r := size / 2
	kernel := mat.NewDense(size, size, nil)
	kernel.Apply(func(i, j int, _ float64) float64 {
		x, y := float64(j-r), float64(i-r)
		return math.Exp(-(x*x + y*y) / (2 * sigma * sigma))
	}, kernel)
	data, err := convolve(src.Data, kernel)
	if err != nil {
		return nil, err
	}

	out := src.derive(data)
	out.annotate("filter", map[string]value.Value{
		"mode":        value.Text("gaussian"),
		"kernel_size": value.Number(float64(size)),
		"sigma":       value.Number(sigma),
	})
	return output("heightmap", out)
}

// convolve applies the normalized kernel to src with reflect padding at the
// edges, so the output keeps the input resolution
func convolve(src, kernel *mat.Dense) (*mat.Dense, error) {
	total := mat.Sum(kernel)
	if isClose(total, 0) {
		return nil, fmt.Errorf("filter kernel must have a non-zero sum")
	}
	var weights mat.Dense
	weights.Scale(1/total, kernel)

	rows, cols := src.Dims()
	k, _ := weights.Dims()
	r := k / 2
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var sum float64
			for ki := 0; ki < k; ki++ {
				si := reflect(i+ki-r, rows)
				for kj := 0; kj < k; kj++ {
					sum += weights.At(ki, kj) * src.At(si, reflect(j+kj-r, cols))
				}
			}
			out.Set(i, j, sum)
		}
	}
	return out, nil
}

// reflect mirrors an out-of-range index about the edges without repeating
// the edge sample
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
