package nodes

import (
	"fmt"
	"path/filepath"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/floats/scalar"
)

// number reads a numeric parameter, falling back to def when it is unset or
// holds something other than a number
func number(node *graph.Node, name string, def float64) float64 {
	if f, ok := optionalNumber(node, name); ok {
		return f
	}
	return def
}

// optionalNumber tells an unset or null parameter apart from zero
func optionalNumber(node *graph.Node, name string) (float64, bool) {
	v, ok := node.Parameter(name)
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// integer reads a numeric parameter truncated toward zero
func integer(node *graph.Node, name string, def int) int {
	return int(number(node, name, float64(def)))
}

func boolean(node *graph.Node, name string, def bool) bool {
	if v, ok := node.Parameter(name); ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return def
}

func text(node *graph.Node, name, def string) string {
	if v, ok := node.Parameter(name); ok {
		if s, ok := v.AsText(); ok {
			return s
		}
	}
	return def
}

// scalarInput prefers a wired input over the parameter of the same name
func scalarInput(node *graph.Node, inputs map[string]value.Value, name string, def float64) float64 {
	fallback := number(node, name, def)
	if v, ok := inputs[name]; ok {
		if f, ok := v.AsNumber(); ok {
			return f
		}
	}
	return fallback
}

// AssetRootKey is the session state entry holding the directory that
// relative "path" parameters are resolved against
const AssetRootKey = "nodes.asset_root"

// pathParam returns the "path" parameter, accepting both Path and Text
// values. Relative paths are joined to the asset root when the session has
// one.
func pathParam(node *graph.Node, ec registry.ExecutionContext) (string, error) {
	var p string
	if v, ok := node.Parameter("path"); ok {
		if s, ok := v.AsPath(); ok {
			p = s
		} else if s, ok := v.AsText(); ok {
			p = s
		}
	}
	if p == "" {
		return "", fmt.Errorf("node %q requires a \"path\" parameter", node.Key)
	}
	if filepath.IsAbs(p) || ec == nil || ec.State() == nil {
		return p, nil
	}
	if root, ok := ec.State().Load(AssetRootKey); ok {
		if dir, ok := root.(string); ok && dir != "" {
			return filepath.Join(dir, p), nil
		}
	}
	return p, nil
}

// heightMapInput decodes a required heightmap input
func heightMapInput(node *graph.Node, inputs map[string]value.Value, port string) (*HeightMap, error) {
	v, ok := inputs[port]
	if !ok {
		return nil, fmt.Errorf("node %q requires input %q", node.Key, port)
	}
	h, err := HeightMapFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("node %q input %q: %w", node.Key, port, err)
	}
	return h, nil
}

func sameShape(node *graph.Node, a, b *HeightMap) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return fmt.Errorf("node %q requires matching resolutions, got %dx%d and %dx%d", node.Key, ar, ac, br, bc)
	}
	return nil
}

// output encodes h for the named port
func output(port string, h *HeightMap) (map[string]value.Value, error) {
	v, err := h.Value()
	if err != nil {
		return nil, err
	}
	return map[string]value.Value{port: v}, nil
}

// isClose matches the tolerance numeric libraries use for float comparison
func isClose(a, b float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, 1e-8, 1e-5)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func portSpec(name, dataType, description string) registry.PortSpec {
	return registry.PortSpec{Name: name, DataType: dataType, Description: description}
}

func param(name, paramType string, def value.Value, description string) registry.ParameterSpec {
	return registry.ParameterSpec{Name: name, Type: paramType, Default: def, Description: description}
}
