package nodes

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
	"gonum.org/v1/gonum/mat"
)

// TextureTag marks Array values holding [rows, cols] or [rows, cols, channels]
// float texture data in 0..1
const TextureTag = "texture"

var textureChannels = map[string]int{"L": 1, "RGB": 3, "RGBA": 4}

func imageNodes() []definition {
	textureMode := func(description string) registry.ParameterSpec {
		p := param("mode", "enum", value.Text("RGB"), description)
		p.Choices = []value.Value{value.Text("L"), value.Text("RGB"), value.Text("RGBA")}
		return p
	}
	pathOut := []registry.PortSpec{portSpec("path", "path", "Output path")}

	return []definition{
		{
			handler:     importHeightMap,
			description: "Import grayscale image as heightmap",
			metadata: registry.NodeMetadata{
				Type:     "import.heightmap",
				Label:    "Import Heightmap",
				Category: "I/O",
				Outputs:  []registry.PortSpec{portSpec("heightmap", "heightmap", "Imported heightmap")},
				Parameters: []registry.ParameterSpec{
					param("path", "path", value.Null(), "Image path"),
					param("normalize", "bool", value.Bool(true), "Normalize to [0,1]"),
					param("scale", "float", value.Number(1), "Scale after normalization"),
				},
				Description: "Load a grayscale image as a heightmap.",
				Tags:        []string{"import", "heightmap"},
			},
		},
		{
			handler:     exportHeightMap,
			description: "Export heightmap to grayscale image",
			metadata: registry.NodeMetadata{
				Type:     "export.heightmap",
				Label:    "Export Heightmap",
				Category: "I/O",
				Inputs:   []registry.PortSpec{portSpec("source", "heightmap", "Heightmap to export")},
				Outputs:  pathOut,
				Parameters: []registry.ParameterSpec{
					param("path", "path", value.Null(), "Destination path"),
					param("min", "float", value.Null(), "Clamp minimum"),
					param("max", "float", value.Null(), "Clamp maximum"),
					param("mkdirs", "bool", value.Bool(true), "Create folders"),
				},
				Description: "Save a heightmap to an 8-bit grayscale image.",
				Tags:        []string{"export", "heightmap"},
			},
		},
		{
			handler:     exportNormalMap,
			description: "Export heightmap as tangent-space normal map",
			metadata: registry.NodeMetadata{
				Type:     "export.normal_map",
				Label:    "Export Normal Map",
				Category: "I/O",
				Inputs:   []registry.PortSpec{portSpec("source", "heightmap", "Heightmap to convert")},
				Outputs:  pathOut,
				Parameters: []registry.ParameterSpec{
					param("path", "path", value.Null(), "Destination path"),
					param("strength", "float", value.Number(1), "Gradient strength"),
					param("mkdirs", "bool", value.Bool(true), "Create folders"),
				},
				Description: "Generate a tangent-space normal map from a heightmap.",
				Tags:        []string{"export", "normal-map"},
			},
		},
		{
			handler:     importTexture,
			description: "Import texture image as float tensor",
			metadata: registry.NodeMetadata{
				Type:     "import.texture",
				Label:    "Import Texture",
				Category: "I/O",
				Outputs: []registry.PortSpec{
					portSpec("texture", "texture", "Texture tensor"),
					portSpec("metadata", "dict", "Texture metadata"),
				},
				Parameters: []registry.ParameterSpec{
					param("path", "path", value.Null(), "Texture path"),
					textureMode("Color space"),
				},
				Description: "Load a texture image into a float tensor.",
				Tags:        []string{"import", "texture"},
			},
		},
		{
			handler:     exportTexture,
			description: "Export texture tensor to image",
			metadata: registry.NodeMetadata{
				Type:     "export.texture",
				Label:    "Export Texture",
				Category: "I/O",
				Inputs:   []registry.PortSpec{portSpec("texture", "texture", "Texture tensor to export")},
				Outputs:  pathOut,
				Parameters: []registry.ParameterSpec{
					param("path", "path", value.Null(), "Destination path"),
					textureMode("Preferred color mode"),
					param("mkdirs", "bool", value.Bool(true), "Create folders"),
				},
				Description: "Write a texture tensor to an image file.",
				Tags:        []string{"export", "texture"},
			},
		},
	}
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func writePNG(node *graph.Node, path string, img image.Image) (map[string]value.Value, error) {
	if boolean(node, "mkdirs", true) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("node %q: create output directory: %w", node.Key, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", node.Key, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return nil, fmt.Errorf("node %q: encode %s: %w", node.Key, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("node %q: %w", node.Key, err)
	}
	return map[string]value.Value{"path": value.Path(path)}, nil
}

// luminance returns the 0..255 grey level of c using ITU-R 601 weights
func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
}

func toByte(v float64) uint8 {
	return uint8(clamp(v, 0, 1) * 255)
}

func importHeightMap(node *graph.Node, _ map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
	path, err := pathParam(node, ec)
	if err != nil {
		return nil, err
	}
	img, err := readImage(path)
	if err != nil {
		return nil, fmt.Errorf("node %q: failed to read heightmap image %s: %w", node.Key, path, err)
	}

	normalize := boolean(node, "normalize", true)
	scale := number(node, "scale", 1)
	bounds := img.Bounds()
	data := mat.NewDense(bounds.Dy(), bounds.Dx(), nil)
	data.Apply(func(i, j int, _ float64) float64 {
		v := luminance(img.At(bounds.Min.X+j, bounds.Min.Y+i))
		if normalize {
			v /= 255
		}
		if !isClose(scale, 1) {
			v *= scale
		}
		return v
	}, data)

	h := NewHeightMap(data)
	h.Metadata["source"] = value.Text(path)
	return output("heightmap", h)
}

func exportHeightMap(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	path, err := pathParam(node, ec)
	if err != nil {
		return nil, err
	}

	lower, ok := optionalNumber(node, "min")
	if !ok {
		lower = mat.Min(src.Data)
	}
	upper, ok := optionalNumber(node, "max")
	if !ok {
		upper = mat.Max(src.Data)
	}
	if isClose(upper, lower) {
		upper = lower + 1
	}

	rows, cols := src.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			img.SetGray(j, i, color.Gray{Y: toByte((src.Data.At(i, j) - lower) / (upper - lower))})
		}
	}
	return writePNG(node, path, img)
}

// gradient is the central-difference derivative along rows (dy) and columns
// (dx), one-sided at the borders
func gradient(m *mat.Dense) (dy, dx *mat.Dense) {
	rows, cols := m.Dims()
	diff := func(get func(k int) float64, k, n int) float64 {
		switch {
		case n < 2:
			return 0
		case k == 0:
			return get(1) - get(0)
		case k == n-1:
			return get(n-1) - get(n-2)
		default:
			return (get(k+1) - get(k-1)) / 2
		}
	}
	dy = mat.NewDense(rows, cols, nil)
	dx = mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dy.Set(i, j, diff(func(k int) float64 { return m.At(k, j) }, i, rows))
			dx.Set(i, j, diff(func(k int) float64 { return m.At(i, k) }, j, cols))
		}
	}
	return dy, dx
}

func exportNormalMap(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
	src, err := heightMapInput(node, inputs, "source")
	if err != nil {
		return nil, err
	}
	path, err := pathParam(node, ec)
	if err != nil {
		return nil, err
	}
	strength := number(node, "strength", 1)

	var scaled mat.Dense
	scaled.Scale(strength, src.Data)
	gy, gx := gradient(&scaled)

	rows, cols := src.Dims()
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			nx, ny, nz := -gx.At(i, j), -gy.At(i, j), 1.0
			length := max(math.Sqrt(nx*nx+ny*ny+nz*nz), 1e-8)
			img.SetRGBA(j, i, color.RGBA{
				R: toByte(nx/length*0.5 + 0.5),
				G: toByte(ny/length*0.5 + 0.5),
				B: toByte(nz/length*0.5 + 0.5),
				A: 255,
			})
		}
	}
	return writePNG(node, path, img)
}

func textureMode(node *graph.Node) (string, error) {
	mode := strings.ToUpper(text(node, "mode", "RGB"))
	if _, ok := textureChannels[mode]; !ok {
		return "", fmt.Errorf("node %q: unsupported texture mode %q", node.Key, mode)
	}
	return mode, nil
}

func importTexture(node *graph.Node, _ map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
	path, err := pathParam(node, ec)
	if err != nil {
		return nil, err
	}
	mode, err := textureMode(node)
	if err != nil {
		return nil, err
	}
	img, err := readImage(path)
	if err != nil {
		return nil, fmt.Errorf("node %q: failed to read texture image %s: %w", node.Key, path, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	channels := textureChannels[mode]
	data := make([]float32, 0, w*h*channels)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.At(x, y)
			if channels == 1 {
				data = append(data, float32(luminance(c)/255))
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			data = append(data, float32(n.R)/255, float32(n.G)/255, float32(n.B)/255)
			if channels == 4 {
				data = append(data, float32(n.A)/255)
			}
		}
	}

	shape := []int{h, w, channels}
	if channels == 1 {
		shape = shape[:2]
	}
	texture, err := value.FromFloat32s(TextureTag, shape, data, nil)
	if err != nil {
		return nil, err
	}
	return map[string]value.Value{
		"texture": texture,
		"metadata": value.Map(map[string]value.Value{
			"mode":   value.Text(mode),
			"size":   value.List(value.Number(float64(w)), value.Number(float64(h))),
			"source": value.Text(path),
		}),
	}, nil
}

func exportTexture(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
	v, ok := inputs["texture"]
	if !ok {
		return nil, fmt.Errorf("node %q requires input %q", node.Key, "texture")
	}
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("node %q: texture input must be an array, got %s", node.Key, v.Kind())
	}
	path, err := pathParam(node, ec)
	if err != nil {
		return nil, err
	}
	if _, err := textureMode(node); err != nil {
		return nil, err
	}

	var rows, cols, channels int
	switch len(arr.Shape) {
	case 2:
		rows, cols, channels = arr.Shape[0], arr.Shape[1], 1
	case 3:
		rows, cols, channels = arr.Shape[0], arr.Shape[1], arr.Shape[2]
		if channels != 1 && channels != 3 && channels != 4 {
			return nil, fmt.Errorf("node %q: texture channel count must be 1, 3, or 4", node.Key)
		}
	default:
		return nil, fmt.Errorf("node %q: texture array must be 2D or 3D", node.Key)
	}

	data := arr.Float64s()
	rect := image.Rect(0, 0, cols, rows)
	var img image.Image
	if channels == 1 {
		gray := image.NewGray(rect)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				gray.SetGray(j, i, color.Gray{Y: toByte(data[i*cols+j])})
			}
		}
		img = gray
	} else {
		rgba := image.NewNRGBA(rect)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				px := data[(i*cols+j)*channels:]
				c := color.NRGBA{R: toByte(px[0]), G: toByte(px[1]), B: toByte(px[2]), A: 255}
				if channels == 4 {
					c.A = toByte(px[3])
				}
				rgba.SetNRGBA(j, i, c)
			}
		}
		img = rgba
	}
	return writePNG(node, path, img)
}
