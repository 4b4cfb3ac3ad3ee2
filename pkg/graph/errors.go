package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGraph is the family sentinel for every topology error
var ErrGraph = errors.New("graph error")

var (
	ErrDuplicateKey  = errors.New("duplicate node key")
	ErrUnknownNode   = errors.New("unknown node")
	ErrCycleDetected = errors.New("cycle detected")
)

// Error carries the offending key, or the cycle members for ErrCycleDetected
type Error struct {
	Kind  error
	Key   string
	Nodes []string
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ErrCycleDetected:
		return fmt.Sprintf("cycle detected involving nodes: %s", strings.Join(e.Nodes, ", "))
	case e.Key != "":
		return fmt.Sprintf("%s: %q", e.Kind, e.Key)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	return []error{ErrGraph, e.Kind}
}

func duplicateKey(key string) error { return &Error{Kind: ErrDuplicateKey, Key: key} }
func unknownNode(key string) error  { return &Error{Kind: ErrUnknownNode, Key: key} }
