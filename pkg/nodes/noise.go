package nodes

import (
	"fmt"
	"math/rand/v2"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func noiseNodes() []definition {
	common := []registry.ParameterSpec{
		param("width", "int", value.Number(256), "Width in pixels"),
		param("height", "int", value.Number(256), "Height in pixels"),
		param("low", "float", value.Number(0), "Lower bound"),
		param("high", "float", value.Number(1), "Upper bound"),
		param("seed", "int", value.Number(0), "Random generator seed"),
	}
	gaussianParams := append(append([]registry.ParameterSpec(nil), common...),
		param("mean", "float", value.Null(), "Distribution mean"),
		param("std_dev", "float", value.Null(), "Standard deviation"),
	)

	return []definition{
		{
			handler:     uniformNoise,
			description: "Uniform random heightmap noise",
			metadata: registry.NodeMetadata{
				Type:        "noise.uniform",
				Label:       "Uniform Noise",
				Category:    "Noise",
				Outputs:     []registry.PortSpec{portSpec("heightmap", "heightmap", "Generated noise")},
				Parameters:  common,
				Description: "Generate uniform random noise as a heightmap.",
				Tags:        []string{"noise", "generator"},
			},
		},
		{
			handler:     gaussianNoise,
			description: "Gaussian random heightmap noise",
			metadata: registry.NodeMetadata{
				Type:        "noise.gaussian",
				Label:       "Gaussian Noise",
				Category:    "Noise",
				Outputs:     []registry.PortSpec{portSpec("heightmap", "heightmap", "Gaussian noise")},
				Parameters:  gaussianParams,
				Description: "Generate Gaussian noise with optional mean and deviation.",
				Tags:        []string{"noise", "generator"},
			},
		},
	}
}

type noiseParams struct {
	width, height int
	low, high     float64
	seed          uint64
}

func parseNoise(node *graph.Node) (noiseParams, error) {
	p := noiseParams{
		width:  integer(node, "width", 256),
		height: integer(node, "height", 256),
		low:    number(node, "low", 0),
		high:   number(node, "high", 1),
		seed:   uint64(integer(node, "seed", 0)),
	}
	if p.width <= 0 || p.height <= 0 {
		return p, fmt.Errorf("node %q: noise requires positive width and height", node.Key)
	}
	if p.high < p.low {
		return p, fmt.Errorf("node %q: noise range high must be >= low", node.Key)
	}
	return p, nil
}

// sample fills a height x width field from draw. The bounds span the pixel extent.
func (p noiseParams) sample(draw func() float64) *HeightMap {
	if isClose(p.high, p.low) {
		return Filled(p.height, p.width, p.low)
	}
	data := make([]float64, p.width*p.height)
	for i := range data {
		// round through float32 to match the stored precision
		data[i] = float64(float32(draw()))
	}
	return NewHeightMap(mat.NewDense(p.height, p.width, data))
}

func (p noiseParams) source() rand.Source {
	return rand.NewPCG(p.seed, p.seed)
}

func uniformNoise(node *graph.Node, _ map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	p, err := parseNoise(node)
	if err != nil {
		return nil, err
	}
	dist := distuv.Uniform{Min: p.low, Max: p.high, Src: p.source()}
	return output("heightmap", p.sample(dist.Rand))
}

func gaussianNoise(node *graph.Node, _ map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
	p, err := parseNoise(node)
	if err != nil {
		return nil, err
	}

	mean := number(node, "mean", (p.high+p.low)/2)
	stdDefault := (p.high - p.low) / 6
	if stdDefault <= 0 {
		stdDefault = 1
	}
	stdDev := number(node, "std_dev", stdDefault)
	if stdDev <= 0 {
		return nil, fmt.Errorf("node %q: noise requires a positive std_dev", node.Key)
	}

	dist := distuv.Normal{Mu: mean, Sigma: stdDev, Src: p.source()}
	return output("heightmap", p.sample(func() float64 {
		return clamp(dist.Rand(), p.low, p.high)
	}))
}
