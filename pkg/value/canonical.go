package value

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Canonical reduces v to plain JSON-encodable data whose encoding is stable
// across runs. Every value becomes a [kind, payload] pair so no two kinds can
// share an encoding; maps become key-sorted pair lists and arrays are reduced
// to shape, dtype and a digest of their bytes.
func (v Value) Canonical() any {
	switch v.kind {
	case KindNull:
		return []any{"null", nil}
	case KindNumber:
		return []any{"number", canonicalNumber(v.num)}
	case KindBool:
		return []any{"bool", v.b}
	case KindText:
		return []any{"text", CanonicalString(v.str)}
	case KindPath:
		return []any{"path", CanonicalString(v.str)}
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Canonical()
		}
		return []any{"list", items}
	case KindMap:
		return []any{"map", CanonicalMap(v.m)}
	case KindArray:
		shape := make([]int, len(v.arr.Shape))
		copy(shape, v.arr.Shape)
		return []any{"array", map[string]any{
			"tag":    CanonicalString(v.arr.Tag),
			"dtype":  string(v.arr.DType),
			"shape":  shape,
			"digest": v.arr.Digest(),
			"attrs":  CanonicalMap(v.arr.Attrs),
		}}
	default:
		return []any{"invalid", nil}
	}
}

// CanonicalMap applies Canonical to every entry and returns [key, value]
// pairs sorted by key
func CanonicalMap(m map[string]Value) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]any, len(keys))
	for i, k := range keys {
		pairs[i] = []any{CanonicalString(k), m[k].Canonical()}
	}
	return pairs
}

// CanonicalString keeps s as is when it is valid UTF-8. Other byte strings
// are base64 encoded under a wrapper object, since encoding/json would
// replace their invalid bytes with U+FFFD.
func CanonicalString(s string) any {
	if utf8.ValidString(s) {
		return s
	}
	return map[string]any{"bytes": base64.StdEncoding.EncodeToString([]byte(s))}
}

// CanonicalJSON encodes the canonical form of v
func CanonicalJSON(v Value) ([]byte, error) {
	return json.Marshal(v.Canonical())
}

func canonicalNumber(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}
