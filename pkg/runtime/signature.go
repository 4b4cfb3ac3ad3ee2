package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/value"
)

// Signature identifies one (node, parameters, inputs) combination. Equal
// signatures mean a cached result may be reused.
type Signature [sha256.Size]byte

func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}

// ComputeSignature hashes the canonical JSON of the node key, its type, its
// parameters and the input values it is about to receive.
func ComputeSignature(node *graph.Node, inputs map[string]value.Value) (Signature, error) {
	payload := map[string]any{
		"node":       value.CanonicalString(node.Key),
		"type":       value.CanonicalString(node.Type),
		"parameters": value.CanonicalMap(node.Parameters),
		"inputs":     value.CanonicalMap(inputs),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Signature{}, fmt.Errorf("encode signature payload for %q: %w", node.Key, err)
	}
	return sha256.Sum256(data), nil
}
