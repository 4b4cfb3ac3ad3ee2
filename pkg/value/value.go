// Package value defines the closed set of values that flow through node
// parameters and ports, together with their canonical form.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNull
	KindNumber
	KindBool
	KindText
	KindPath
	KindList
	KindMap
	KindArray
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindNull:    "null",
	KindNumber:  "number",
	KindBool:    "bool",
	KindText:    "text",
	KindPath:    "path",
	KindList:    "list",
	KindMap:     "map",
	KindArray:   "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable tagged union. The zero Value is invalid and is never
// accepted as a handler output.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	list []Value
	m    map[string]Value
	arr  *Array
}

// Null returns the null value
func Null() Value { return Value{kind: KindNull} }

// Number returns a numeric value
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Text returns a string value
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Path returns a filesystem path value. Paths and texts never compare equal.
func Path(p string) Value { return Value{kind: KindPath, str: p} }

// List returns an ordered list value
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Map returns a string-keyed map value
func Map(entries map[string]Value) Value {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }
func (v Value) IsNull() bool  { return v.kind == KindNull }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsText() (string, bool)    { return v.str, v.kind == KindText }
func (v Value) AsPath() (string, bool)    { return v.str, v.kind == KindPath }

// AsList returns a copy of the list items
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsMap returns a copy of the map entries
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp, true
}

// AsArray returns the structured payload. The returned array must not be modified.
func (v Value) AsArray() (*Array, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Equal reports whether a and b have the same canonical form
func Equal(a, b Value) bool {
	ab, errA := CanonicalJSON(a)
	bb, errB := CanonicalJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// String renders the value for humans. It is not the canonical form.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindText:
		return strconv.Quote(v.str)
	case KindPath:
		return v.str
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindArray:
		return v.arr.String()
	default:
		return "<invalid>"
	}
}

// FromAny converts decoded Go natives into a Value. It accepts the shapes
// produced by encoding/json and TOML decoders.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case string:
		return Text(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case []Value:
		return List(t...), nil
	case map[string]any:
		entries := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			entries[k] = v
		}
		return Value{kind: KindMap, m: entries}, nil
	case map[string]Value:
		return Map(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// FromMap converts every entry of a decoded map
func FromMap(m map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
