package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
)

const (
	pathKey  = "$path"
	arrayKey = "$array"
	floatKey = "$float"
	mapKey   = "$map"
)

// isEnvelope reports whether a one-entry map would read back as a tagged
// value. Such maps are written under mapKey.
func isEnvelope(m map[string]Value) bool {
	if len(m) != 1 {
		return false
	}
	for k := range m {
		switch k {
		case pathKey, arrayKey, floatKey, mapKey:
			return true
		}
	}
	return false
}

type arrayJSON struct {
	Tag   string           `json:"tag"`
	DType DType            `json:"dtype"`
	Shape []int            `json:"shape"`
	Data  string           `json:"data"`
	Attrs map[string]Value `json:"attrs,omitempty"`
}

// MarshalJSON encodes v in the project file format
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		switch {
		case math.IsNaN(v.num):
			return json.Marshal(map[string]string{floatKey: "NaN"})
		case math.IsInf(v.num, 1):
			return json.Marshal(map[string]string{floatKey: "+Inf"})
		case math.IsInf(v.num, -1):
			return json.Marshal(map[string]string{floatKey: "-Inf"})
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindText:
		return json.Marshal(v.str)
	case KindPath:
		return json.Marshal(map[string]string{pathKey: v.str})
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		if isEnvelope(v.m) {
			return json.Marshal(map[string]map[string]Value{mapKey: v.m})
		}
		return json.Marshal(v.m)
	case KindArray:
		return json.Marshal(map[string]arrayJSON{arrayKey: {
			Tag:   v.arr.Tag,
			DType: v.arr.DType,
			Shape: v.arr.Shape,
			Data:  base64.StdEncoding.EncodeToString(v.arr.Data),
			Attrs: v.arr.Attrs,
		}})
	default:
		// null, and unset values such as a parameter without a default
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case '[':
		var items []Value
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*v = Value{kind: KindList, list: items}
		if v.list == nil {
			v.list = []Value{}
		}
		return nil
	case '{':
		return v.unmarshalObject(trimmed)
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	}
}

func (v *Value) unmarshalObject(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 1 {
		if msg, ok := raw[mapKey]; ok {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(msg, &inner); err != nil {
				return fmt.Errorf("decode map: %w", err)
			}
			return v.decodeEntries(inner)
		}
		if msg, ok := raw[pathKey]; ok {
			var p string
			if err := json.Unmarshal(msg, &p); err != nil {
				return fmt.Errorf("decode path: %w", err)
			}
			*v = Path(p)
			return nil
		}
		if msg, ok := raw[floatKey]; ok {
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return fmt.Errorf("decode float: %w", err)
			}
			switch s {
			case "NaN":
				*v = Number(math.NaN())
			case "+Inf":
				*v = Number(math.Inf(1))
			case "-Inf":
				*v = Number(math.Inf(-1))
			default:
				return fmt.Errorf("unknown float literal %q", s)
			}
			return nil
		}
		if msg, ok := raw[arrayKey]; ok {
			var aj arrayJSON
			if err := json.Unmarshal(msg, &aj); err != nil {
				return fmt.Errorf("decode array: %w", err)
			}
			buf, err := base64.StdEncoding.DecodeString(aj.Data)
			if err != nil {
				return fmt.Errorf("decode array data: %w", err)
			}
			arr, err := NewArray(Array{Tag: aj.Tag, DType: aj.DType, Shape: aj.Shape, Data: buf, Attrs: aj.Attrs})
			if err != nil {
				return err
			}
			*v = arr
			return nil
		}
	}
	return v.decodeEntries(raw)
}

func (v *Value) decodeEntries(raw map[string]json.RawMessage) error {
	entries := make(map[string]Value, len(raw))
	for k, msg := range raw {
		var e Value
		if err := json.Unmarshal(msg, &e); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		entries[k] = e
	}
	*v = Value{kind: KindMap, m: entries}
	return nil
}
