package registry

import (
	"errors"
	"fmt"
)

// ErrRegistry is the family sentinel for handler lookup failures
var ErrRegistry = errors.New("registry error")

var (
	ErrDuplicateType       = errors.New("handler already registered")
	ErrUnknownType         = errors.New("no handler registered")
	ErrMetadataUnavailable = errors.New("metadata not available")
)

// Error names the node type the lookup was made for
type Error struct {
	Kind error
	Type string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s for %q", e.Kind, e.Type)
}

func (e *Error) Unwrap() []error {
	return []error{ErrRegistry, e.Kind}
}
