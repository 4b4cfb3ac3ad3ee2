// Package nodes is the standard node library: scalar primitives plus the
// heightmap generators, filters and image I/O used to build terrain graphs.
package nodes

import (
	"github.com/ritzau/hesiod/pkg/registry"
)

type definition struct {
	handler     registry.HandlerFunc
	description string
	metadata    registry.NodeMetadata
}

func library() [][]definition {
	return [][]definition{
		primitiveNodes(),
		noiseNodes(),
		blendNodes(),
		filterNodes(),
		maskNodes(),
		transformNodes(),
		imageNodes(),
	}
}

// Register adds every standard node type to r
func Register(r *registry.Registry) error {
	for _, group := range library() {
		for _, d := range group {
			err := r.Register(d.metadata.Type, d.handler,
				registry.WithDescription(d.description),
				registry.WithMetadata(d.metadata))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// StandardRegistry returns a fresh registry holding the standard library
func StandardRegistry() *registry.Registry {
	r := registry.New()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
