package runtime

import (
	"context"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
)

// Settings is the configuration the runtime reads at the start of every
// evaluation
type Settings struct {
	Memoization bool
}

// DefaultSettings enables memoization
func DefaultSettings() Settings {
	return Settings{Memoization: true}
}

// Context is the execution context handed to node handlers. One Context is
// normally kept per session so that State persists between evaluations.
type Context struct {
	ctx      context.Context
	graph    *graph.Graph
	state    *registry.State
	settings *Settings
}

var _ registry.ExecutionContext = (*Context)(nil)

// NewContext builds an execution context. A nil settings means memoization is
// enabled; a nil state starts an empty one.
func NewContext(ctx context.Context, g *graph.Graph, settings *Settings, state *registry.State) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if state == nil {
		state = registry.NewState()
	}
	return &Context{ctx: ctx, graph: g, state: state, settings: settings}
}

func (c *Context) Context() context.Context { return c.ctx }
func (c *Context) State() *registry.State   { return c.state }
func (c *Context) Graph() *graph.Graph      { return c.graph }

// MemoizationEnabled reports whether cached results may be reused and stored
func (c *Context) MemoizationEnabled() bool {
	if c.settings == nil {
		return true
	}
	return c.settings.Memoization
}

// WithContext returns a shallow copy bound to ctx, sharing state and settings
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.ctx = ctx
	return &cp
}
