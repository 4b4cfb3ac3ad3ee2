// Package runtime evaluates node graphs: it orders the nodes, gathers their
// inputs, reuses memoized results where the signature still matches and runs
// handlers for everything else.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
)

// ProgressFunc is called with (0, total, "") before the first node and with
// (done, total, key) after each node completes
type ProgressFunc func(done, total int, key string)

// Results maps node key to that node's outputs keyed by port
type Results map[string]map[string]value.Value

// Value returns one output of one node
func (r Results) Value(node, port string) (value.Value, bool) {
	outputs, ok := r[node]
	if !ok {
		return value.Value{}, false
	}
	v, ok := outputs[port]
	return v, ok
}

// Stats summarizes one Evaluate call
type Stats struct {
	EvaluationID string        `json:"evaluation_id"`
	Total        int           `json:"total"`
	Evaluated    int           `json:"evaluated"`
	Reused       int           `json:"reused"`
	Duration     time.Duration `json:"duration"`
}

// EvaluateOptions controls one Evaluate call
type EvaluateOptions struct {
	// Targets limits evaluation to these nodes and their dependencies. Nil
	// means every node. Unknown keys are ignored.
	Targets []string

	// Force ignores cached results. Fresh results are still stored.
	Force bool

	Progress ProgressFunc

	// Stats is filled in when non-nil
	Stats *Stats
}

// Scheduler evaluates one graph against one registry and cache. It is not
// safe for concurrent Evaluate calls on the same graph; callers serialize.
type Scheduler struct {
	graph    *graph.Graph
	registry *registry.Registry
	cache    *Cache
	workers  int
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithCache shares an existing cache
func WithCache(c *Cache) Option {
	return func(s *Scheduler) { s.cache = c }
}

// WithWorkers evaluates independent nodes of the same rank concurrently.
// Values below 2 keep evaluation strictly sequential.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

// NewScheduler creates a scheduler with a private cache unless one is given
func NewScheduler(g *graph.Graph, reg *registry.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{graph: g, registry: reg, workers: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache()
	}
	return s
}

func (s *Scheduler) Graph() *graph.Graph { return s.graph }
func (s *Scheduler) Cache() *Cache       { return s.cache }

// pass holds the outputs produced during one Evaluate call
type pass struct {
	mu      sync.RWMutex
	outputs map[string]map[string]value.Value
}

func (p *pass) get(key string) (map[string]value.Value, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out, ok := p.outputs[key]
	return out, ok
}

func (p *pass) set(key string, outputs map[string]value.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs[key] = outputs
}

// run carries the per-call state shared by sequential and parallel evaluation
type run struct {
	ec       *Context
	pass     *pass
	memoize  bool
	force    bool
	total    int
	progress ProgressFunc

	mu        sync.Mutex
	done      int
	evaluated int
	reused    int
}

func (r *run) completed(key string, reused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	if reused {
		r.reused++
	} else {
		r.evaluated++
	}
	if r.progress != nil {
		r.progress(r.done, r.total, key)
	}
}

// Evaluate brings the requested nodes up to date and returns their outputs.
// Only the requested nodes appear in the result, though their dependencies
// are evaluated and cached too. A nil rc evaluates with default settings and
// a throwaway state.
func (s *Scheduler) Evaluate(rc *Context, opts EvaluateOptions) (Results, error) {
	if rc == nil {
		rc = NewContext(context.Background(), s.graph, nil, nil)
	}

	requested := s.requested(opts.Targets)
	if len(requested) == 0 {
		return Results{}, nil
	}

	order, err := s.graph.TopologicalOrder(requested)
	if err != nil {
		return nil, err
	}

	evaluationID := uuid.NewString()
	ec := rc.WithContext(logging.WithEvaluationID(rc.Context(), evaluationID))
	start := time.Now()

	r := &run{
		ec:       ec,
		pass:     &pass{outputs: make(map[string]map[string]value.Value, len(order))},
		memoize:  rc.MemoizationEnabled(),
		force:    opts.Force,
		total:    len(order),
		progress: opts.Progress,
	}

	logging.DebugContext(ec.Context(), "evaluation started",
		"targets", len(requested), "nodes", len(order), "memoize", r.memoize, "force", r.force)

	if r.progress != nil {
		r.progress(0, r.total, "")
	}

	if s.workers > 1 {
		err = s.evaluateRanks(r, order)
	} else {
		err = s.evaluateSequential(r, order)
	}
	if err != nil {
		logging.WarnContext(ec.Context(), "evaluation failed", "error", err)
		return nil, err
	}

	results := make(Results, len(requested))
	for _, key := range requested {
		if outputs, ok := r.pass.get(key); ok {
			results[key] = outputs
		}
	}

	duration := time.Since(start)
	logging.InfoContext(ec.Context(), "evaluation completed",
		"nodes", r.total, "evaluated", r.evaluated, "reused", r.reused, "durationMs", duration.Milliseconds())

	if opts.Stats != nil {
		*opts.Stats = Stats{
			EvaluationID: evaluationID,
			Total:        r.total,
			Evaluated:    r.evaluated,
			Reused:       r.reused,
			Duration:     duration,
		}
	}
	return results, nil
}

// requested resolves the target list to known keys, deduplicated and sorted
func (s *Scheduler) requested(targets []string) []string {
	if targets == nil {
		return s.graph.Keys()
	}
	seen := make(map[string]struct{}, len(targets))
	keys := make([]string, 0, len(targets))
	for _, k := range targets {
		if _, dup := seen[k]; dup || !s.graph.HasNode(k) {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Scheduler) evaluateSequential(r *run, order []string) error {
	for _, key := range order {
		if err := r.ec.Context().Err(); err != nil {
			return fmt.Errorf("evaluation cancelled before %q: %w", key, err)
		}
		reused, err := s.step(r, key, s.graph.IsDirty(key))
		if err != nil {
			return err
		}
		s.graph.ClearDirty(key)
		r.completed(key, reused)
	}
	return nil
}

// step brings one node up to date and records its outputs in the pass
func (s *Scheduler) step(r *run, key string, dirty bool) (bool, error) {
	node, ok := s.graph.Node(key)
	if !ok {
		return false, &Error{Kind: ErrMissingDependency, Node: key, Source: key}
	}

	inputs, err := s.collectInputs(key, r.pass)
	if err != nil {
		return false, err
	}

	sig, err := ComputeSignature(node, inputs)
	if err != nil {
		return false, err
	}

	ctx := r.ec.Context()
	if !r.force && r.memoize && !dirty && s.cache.IsValid(key, sig) {
		outputs, ok := s.cache.Outputs(key)
		if !ok {
			return false, &Error{Kind: ErrCacheCorruption, Node: key}
		}
		logging.DebugContext(ctx, "cache hit", "node", key)
		r.pass.set(key, outputs)
		return true, nil
	}

	def, err := s.registry.Get(node.Type)
	if err != nil {
		return false, fmt.Errorf("node %q: %w", key, err)
	}

	logging.DebugContext(ctx, "executing node", "node", key, "type", node.Type, "dirty", dirty)
	outputs, err := execute(def.Handler, node, inputs, r.ec)
	if err != nil {
		return false, err
	}
	if r.memoize {
		s.cache.Store(key, sig, outputs)
	}
	r.pass.set(key, outputs)
	return false, nil
}

// collectInputs resolves every input connection of key, preferring outputs
// produced earlier in this pass over cached ones
func (s *Scheduler) collectInputs(key string, p *pass) (map[string]value.Value, error) {
	connections := s.graph.InputsFor(key)
	inputs := make(map[string]value.Value, len(connections))
	for port, conn := range connections {
		outputs, ok := p.get(conn.SourceNode)
		if !ok {
			outputs, ok = s.cache.Outputs(conn.SourceNode)
		}
		if !ok {
			return nil, &Error{Kind: ErrMissingDependency, Node: key, Source: conn.SourceNode, Port: port}
		}
		v, ok := outputs[conn.SourcePort]
		if !ok {
			return nil, &Error{Kind: ErrMissingOutputPort, Node: key, Source: conn.SourceNode, Port: conn.SourcePort}
		}
		inputs[port] = v
	}
	return inputs, nil
}

// execute runs a handler, turning errors and panics into scheduler errors
func execute(h registry.Handler, node *graph.Node, inputs map[string]value.Value, ec *Context) (outputs map[string]value.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			outputs = nil
			err = &Error{Kind: ErrNodeExecutionFailed, Node: node.Key, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	outputs, err = h.Execute(node, inputs, ec)
	if err != nil {
		return nil, &Error{Kind: ErrNodeExecutionFailed, Node: node.Key, Err: err}
	}
	if outputs == nil {
		return nil, &Error{Kind: ErrInvalidHandlerOutput, Node: node.Key, Err: errors.New("handler returned no output map")}
	}
	for port, v := range outputs {
		if !v.IsValid() {
			return nil, &Error{Kind: ErrInvalidHandlerOutput, Node: node.Key, Err: fmt.Errorf("port %q holds no value", port)}
		}
	}
	return outputs, nil
}
