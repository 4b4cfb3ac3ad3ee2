package value

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DType names the element encoding of an Array. Elements are little-endian.
type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
	Int32   DType = "int32"
	Uint8   DType = "uint8"
)

// Size returns the element width in bytes, or 0 for unknown dtypes
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Uint8:
		return 1
	default:
		return 0
	}
}

// Array is the structured payload variant: a dense n-dimensional buffer plus
// a tag naming what it represents (e.g. "heightmap") and free-form attributes.
type Array struct {
	Tag   string
	DType DType
	Shape []int
	Data  []byte
	Attrs map[string]Value
}

// NewArray validates a and wraps it into a Value. Ownership of the slices
// passes to the returned value.
func NewArray(a Array) (Value, error) {
	size := a.DType.Size()
	if size == 0 {
		return Value{}, fmt.Errorf("unsupported dtype %q", a.DType)
	}
	n := 1
	for _, dim := range a.Shape {
		if dim < 0 {
			return Value{}, fmt.Errorf("negative dimension in shape %v", a.Shape)
		}
		n *= dim
	}
	if len(a.Data) != n*size {
		return Value{}, fmt.Errorf("array %v of %s needs %d bytes, got %d", a.Shape, a.DType, n*size, len(a.Data))
	}
	if a.Attrs == nil {
		a.Attrs = map[string]Value{}
	}
	arr := a
	return Value{kind: KindArray, arr: &arr}, nil
}

// FromFloat32s encodes data as a float32 array
func FromFloat32s(tag string, shape []int, data []float32, attrs map[string]Value) (Value, error) {
	buf := make([]byte, 4*len(data))
	for i, f := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return NewArray(Array{Tag: tag, DType: Float32, Shape: append([]int(nil), shape...), Data: buf, Attrs: attrs})
}

// FromUint8s encodes data as a uint8 array
func FromUint8s(tag string, shape []int, data []uint8, attrs map[string]Value) (Value, error) {
	return NewArray(Array{Tag: tag, DType: Uint8, Shape: append([]int(nil), shape...), Data: append([]byte(nil), data...), Attrs: attrs})
}

// Len returns the number of elements
func (a *Array) Len() int {
	if s := a.DType.Size(); s > 0 {
		return len(a.Data) / s
	}
	return 0
}

// Float64s decodes every element into a float64 slice regardless of dtype
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		switch a.DType {
		case Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:])))
		case Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Data[8*i:]))
		case Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(a.Data[4*i:])))
		case Uint8:
			out[i] = float64(a.Data[i])
		}
	}
	return out
}

// Digest is the SHA-1 of the raw bytes, used by the canonical form
func (a *Array) Digest() string {
	sum := sha1.Sum(a.Data)
	return hex.EncodeToString(sum[:])
}

func (a *Array) String() string {
	dims := make([]string, len(a.Shape))
	for i, d := range a.Shape {
		dims[i] = strconv.Itoa(d)
	}
	tag := a.Tag
	if tag == "" {
		tag = "array"
	}
	return fmt.Sprintf("%s %s[%s]", tag, a.DType, strings.Join(dims, "x"))
}
