package nodes

import (
	"fmt"
	"maps"

	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
)

// HeightMapTag marks Array values that carry a heightmap or mask
const HeightMapTag = "heightmap"

// HeightMap is a row-major 2D field together with its world-space bounds
// (xmin, xmax, ymin, ymax) and free-form metadata accumulated by the nodes
// it passed through.
type HeightMap struct {
	Data     *mat.Dense
	Bounds   [4]float64
	Metadata map[string]value.Value
}

// NewHeightMap wraps data, defaulting bounds to the pixel extent
func NewHeightMap(data *mat.Dense) *HeightMap {
	rows, cols := data.Dims()
	return &HeightMap{
		Data:     data,
		Bounds:   [4]float64{0, float64(cols), 0, float64(rows)},
		Metadata: map[string]value.Value{},
	}
}

// Filled creates a rows x cols heightmap with every cell set to v
func Filled(rows, cols int, v float64) *HeightMap {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return NewHeightMap(mat.NewDense(rows, cols, data))
}

// HeightMapFromValue decodes a heightmap-tagged Array value
func HeightMapFromValue(v value.Value) (*HeightMap, error) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("expected a heightmap, got %s", v.Kind())
	}
	if arr.Tag != HeightMapTag {
		return nil, fmt.Errorf("expected a heightmap, got array tagged %q", arr.Tag)
	}
	if len(arr.Shape) != 2 || arr.Shape[0] <= 0 || arr.Shape[1] <= 0 {
		return nil, fmt.Errorf("heightmap needs a non-empty 2D shape, got %v", arr.Shape)
	}

	h := NewHeightMap(mat.NewDense(arr.Shape[0], arr.Shape[1], arr.Float64s()))
	if b, ok := arr.Attrs["bounds"].AsList(); ok && len(b) == 4 {
		for i, item := range b {
			if f, ok := item.AsNumber(); ok {
				h.Bounds[i] = f
			}
		}
	}
	if m, ok := arr.Attrs["metadata"].AsMap(); ok {
		h.Metadata = m
	}
	return h, nil
}

// Value encodes h as a float32 Array tagged HeightMapTag
func (h *HeightMap) Value() (value.Value, error) {
	rows, cols := h.Data.Dims()
	data := make([]float32, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for _, f := range h.Data.RawRowView(i) {
			data = append(data, float32(f))
		}
	}

	bounds := make([]value.Value, len(h.Bounds))
	for i, b := range h.Bounds {
		bounds[i] = value.Number(b)
	}
	attrs := map[string]value.Value{
		"bounds":   value.List(bounds...),
		"metadata": value.Map(h.Metadata),
	}
	return value.FromFloat32s(HeightMapTag, []int{rows, cols}, data, attrs)
}

func (h *HeightMap) Dims() (rows, cols int) {
	return h.Data.Dims()
}

// derive returns a heightmap with new data that keeps h's bounds and a copy
// of its metadata
func (h *HeightMap) derive(data *mat.Dense) *HeightMap {
	return &HeightMap{Data: data, Bounds: h.Bounds, Metadata: maps.Clone(h.Metadata)}
}

// annotate merges fields into the metadata section named by group
func (h *HeightMap) annotate(group string, fields map[string]value.Value) {
	if h.Metadata == nil {
		h.Metadata = map[string]value.Value{}
	}
	merged := map[string]value.Value{}
	if existing, ok := h.Metadata[group].AsMap(); ok {
		merged = existing
	}
	maps.Copy(merged, fields)
	h.Metadata[group] = value.Map(merged)
}

// apply maps fn over every cell into a new heightmap
func (h *HeightMap) apply(fn func(v float64) float64) *HeightMap {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, h.Data)
	return h.derive(&out)
}
