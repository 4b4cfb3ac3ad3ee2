package runtime

import (
	"errors"
	"fmt"
)

// ErrScheduler is the family sentinel for evaluation failures
var ErrScheduler = errors.New("scheduler error")

var (
	ErrMissingDependency    = errors.New("missing dependency outputs")
	ErrMissingOutputPort    = errors.New("missing output port")
	ErrInvalidHandlerOutput = errors.New("invalid handler output")
	ErrNodeExecutionFailed  = errors.New("node execution failed")
	ErrCacheCorruption      = errors.New("cache corruption")
)

// Error describes which node failed and why. For ErrNodeExecutionFailed the
// handler's own error is reachable through errors.Is and errors.As.
type Error struct {
	Kind   error
	Node   string
	Source string
	Port   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrMissingDependency:
		return fmt.Sprintf("missing outputs for %q required by %q", e.Source, e.Node)
	case ErrMissingOutputPort:
		return fmt.Sprintf("node %q does not provide port %q", e.Source, e.Port)
	case ErrNodeExecutionFailed:
		return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
	case ErrInvalidHandlerOutput:
		return fmt.Sprintf("node %q produced invalid outputs: %v", e.Node, e.Err)
	case ErrCacheCorruption:
		return fmt.Sprintf("cache entry for node %q has a signature but no outputs", e.Node)
	default:
		return fmt.Sprintf("%v: node %q", e.Kind, e.Node)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrScheduler, e.Kind, e.Err}
	}
	return []error{ErrScheduler, e.Kind}
}
