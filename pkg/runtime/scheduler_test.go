package runtime

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/value"
)

// counter records how often each node's handler ran
type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCounter() *counter { return &counter{calls: make(map[string]int)} }

func (c *counter) inc(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key]++
}

func (c *counter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func scalar(node *graph.Node, inputs map[string]value.Value, name string, def float64) float64 {
	if v, ok := inputs[name]; ok {
		if f, ok := v.AsNumber(); ok {
			return f
		}
	}
	if v, ok := node.Parameter(name); ok {
		if f, ok := v.AsNumber(); ok {
			return f
		}
	}
	return def
}

func testRegistry(c *counter) *registry.Registry {
	r := registry.New()
	r.MustRegister("test.constant", registry.HandlerFunc(
		func(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
			c.inc(node.Key)
			return map[string]value.Value{"output": value.Number(scalar(node, nil, "value", 0))}, nil
		}))
	r.MustRegister("test.add", registry.HandlerFunc(
		func(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
			c.inc(node.Key)
			sum := scalar(node, inputs, "lhs", 0) + scalar(node, inputs, "rhs", 0)
			return map[string]value.Value{"output": value.Number(sum)}, nil
		}))
	r.MustRegister("test.multiply", registry.HandlerFunc(
		func(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
			c.inc(node.Key)
			product := scalar(node, inputs, "lhs", 1) * scalar(node, inputs, "rhs", 1)
			return map[string]value.Value{"output": value.Number(product)}, nil
		}))
	return r
}

// arithmetic builds (c1 + c2) * 10 with c1 = 2 and c2 = 3
func arithmetic(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("arithmetic")
	nodes := []*graph.Node{
		graph.NewNode("c1", "test.constant").WithParameter("value", value.Number(2)),
		graph.NewNode("c2", "test.constant").WithParameter("value", value.Number(3)),
		graph.NewNode("add", "test.add"),
		graph.NewNode("mul", "test.multiply").WithParameter("rhs", value.Number(10)),
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	connect(t, g, "c1", "output", "add", "lhs")
	connect(t, g, "c2", "output", "add", "rhs")
	connect(t, g, "add", "output", "mul", "lhs")
	return g
}

func connect(t *testing.T, g *graph.Graph, src, srcPort, dst, dstPort string) {
	t.Helper()
	if err := g.Connect(src, srcPort, dst, dstPort); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

func number(t *testing.T, results Results, node string) float64 {
	t.Helper()
	v, ok := results.Value(node, "output")
	if !ok {
		t.Fatalf("Expected output for %s in %v", node, results)
	}
	f, ok := v.AsNumber()
	if !ok {
		t.Fatalf("Expected number for %s, got %s", node, v.Kind())
	}
	return f
}

func TestEvaluate_EndToEnd(t *testing.T) {
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(newCounter()))

	results, err := s.Evaluate(nil, EvaluateOptions{Targets: []string{"mul"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if got := number(t, results, "mul"); got != 50 {
		t.Errorf("Expected 50, got %v", got)
	}
	if len(results) != 1 {
		t.Errorf("Expected only the requested node in results, got %d entries", len(results))
	}
	if len(g.Dirty()) != 0 {
		t.Errorf("Expected evaluated nodes to be clean, got %v", g.Dirty())
	}
	if s.Cache().Len() != 4 {
		t.Errorf("Expected dependencies to be cached too, got %v", s.Cache().Keys())
	}
}

func TestEvaluate_ReusesCache(t *testing.T) {
	c := newCounter()
	s := NewScheduler(arithmetic(t), testRegistry(c))

	first, err := s.Evaluate(nil, EvaluateOptions{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	var stats Stats
	second, err := s.Evaluate(nil, EvaluateOptions{Stats: &stats})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	for _, key := range []string{"c1", "c2", "add", "mul"} {
		if c.get(key) != 1 {
			t.Errorf("Expected %s to run once, ran %d times", key, c.get(key))
		}
		if number(t, first, key) != number(t, second, key) {
			t.Errorf("Expected identical outputs for %s", key)
		}
	}
	if stats.Reused != 4 || stats.Evaluated != 0 {
		t.Errorf("Expected 4 reused and 0 evaluated, got %+v", stats)
	}
	if stats.EvaluationID == "" {
		t.Error("Expected an evaluation ID")
	}
}

func TestEvaluate_ParameterChangePropagates(t *testing.T) {
	c := newCounter()
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(c))
	if _, err := s.Evaluate(nil, EvaluateOptions{}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	node, _ := g.Node("c1")
	node.UpdateParameters(map[string]value.Value{"value": value.Number(7)})
	g.MarkDirty("c1")

	results, err := s.Evaluate(nil, EvaluateOptions{Targets: []string{"mul"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if got := number(t, results, "mul"); got != 100 {
		t.Errorf("Expected 100, got %v", got)
	}
	// mul is two hops away and not dirty, but its input changed
	for key, want := range map[string]int{"c1": 2, "c2": 1, "add": 2, "mul": 2} {
		if c.get(key) != want {
			t.Errorf("Expected %s to run %d times, ran %d", key, want, c.get(key))
		}
	}
}

func TestEvaluate_DirtyCascadeStopsAfterOneHop(t *testing.T) {
	c := newCounter()
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(c))
	if _, err := s.Evaluate(nil, EvaluateOptions{}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// Dirty without a change: c1 and add rerun because they are flagged,
	// mul is reused because its inputs hash the same
	g.MarkDirty("c1")
	if _, err := s.Evaluate(nil, EvaluateOptions{}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	for key, want := range map[string]int{"c1": 2, "c2": 1, "add": 2, "mul": 1} {
		if c.get(key) != want {
			t.Errorf("Expected %s to run %d times, ran %d", key, want, c.get(key))
		}
	}
}

func TestEvaluate_SiblingUntouched(t *testing.T) {
	c := newCounter()
	g := arithmetic(t)
	g.AddNode(graph.NewNode("other", "test.multiply"))
	connect(t, g, "c2", "output", "other", "lhs")
	s := NewScheduler(g, testRegistry(c))

	if _, err := s.Evaluate(nil, EvaluateOptions{Targets: []string{"add"}}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if c.get("other") != 0 || c.get("mul") != 0 {
		t.Errorf("Expected nodes outside the closure not to run, got other=%d mul=%d", c.get("other"), c.get("mul"))
	}
	if !g.IsDirty("other") {
		t.Error("Expected sibling to stay dirty")
	}
}

func TestEvaluate_Force(t *testing.T) {
	c := newCounter()
	s := NewScheduler(arithmetic(t), testRegistry(c))
	s.Evaluate(nil, EvaluateOptions{})

	if _, err := s.Evaluate(nil, EvaluateOptions{Force: true}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if c.get("mul") != 2 {
		t.Errorf("Expected forced evaluation to rerun mul, ran %d times", c.get("mul"))
	}
	if s.Cache().Len() != 4 {
		t.Errorf("Expected forced results to be cached, got %d entries", s.Cache().Len())
	}
}

func TestEvaluate_MemoizationDisabled(t *testing.T) {
	c := newCounter()
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(c))
	rc := NewContext(context.Background(), g, &Settings{Memoization: false}, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Evaluate(rc, EvaluateOptions{}); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}

	if c.get("c1") != 2 {
		t.Errorf("Expected every evaluation to run handlers, c1 ran %d times", c.get("c1"))
	}
	if s.Cache().Len() != 0 {
		t.Errorf("Expected nothing cached, got %v", s.Cache().Keys())
	}
}

func TestEvaluate_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	r := testRegistry(newCounter())
	r.MustRegister("test.fail", registry.HandlerFunc(
		func(*graph.Node, map[string]value.Value, registry.ExecutionContext) (map[string]value.Value, error) {
			return nil, boom
		}))
	g := graph.New("fail")
	g.AddNode(graph.NewNode("bad", "test.fail"))
	s := NewScheduler(g, r)

	_, err := s.Evaluate(nil, EvaluateOptions{})

	if !errors.Is(err, ErrNodeExecutionFailed) || !errors.Is(err, ErrScheduler) {
		t.Fatalf("Expected ErrNodeExecutionFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("Expected the handler error to be reachable")
	}
	if !strings.Contains(err.Error(), `"bad"`) || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected message to name node and cause, got %q", err)
	}
	if !g.IsDirty("bad") {
		t.Error("Expected a failed node to stay dirty")
	}
}

func TestEvaluate_HandlerPanic(t *testing.T) {
	r := registry.New()
	r.MustRegister("test.panic", registry.HandlerFunc(
		func(*graph.Node, map[string]value.Value, registry.ExecutionContext) (map[string]value.Value, error) {
			panic("kaboom")
		}))
	g := graph.New("panic")
	g.AddNode(graph.NewNode("p", "test.panic"))

	_, err := NewScheduler(g, r).Evaluate(nil, EvaluateOptions{})

	if !errors.Is(err, ErrNodeExecutionFailed) {
		t.Fatalf("Expected ErrNodeExecutionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("Expected panic value in message, got %q", err)
	}
}

func TestEvaluate_InvalidHandlerOutput(t *testing.T) {
	r := registry.New()
	r.MustRegister("test.nil", registry.HandlerFunc(
		func(*graph.Node, map[string]value.Value, registry.ExecutionContext) (map[string]value.Value, error) {
			return nil, nil
		}))
	r.MustRegister("test.zero", registry.HandlerFunc(
		func(*graph.Node, map[string]value.Value, registry.ExecutionContext) (map[string]value.Value, error) {
			return map[string]value.Value{"output": {}}, nil
		}))

	for _, nodeType := range []string{"test.nil", "test.zero"} {
		g := graph.New("invalid")
		g.AddNode(graph.NewNode("n", nodeType))

		_, err := NewScheduler(g, r).Evaluate(nil, EvaluateOptions{})

		if !errors.Is(err, ErrInvalidHandlerOutput) {
			t.Errorf("%s: expected ErrInvalidHandlerOutput, got %v", nodeType, err)
		}
	}
}

func TestEvaluate_MissingOutputPort(t *testing.T) {
	g := arithmetic(t)
	connect(t, g, "c1", "nope", "mul", "lhs")
	s := NewScheduler(g, testRegistry(newCounter()))

	_, err := s.Evaluate(nil, EvaluateOptions{})

	var schedErr *Error
	if !errors.As(err, &schedErr) || schedErr.Kind != ErrMissingOutputPort {
		t.Fatalf("Expected ErrMissingOutputPort, got %v", err)
	}
	if schedErr.Source != "c1" || schedErr.Port != "nope" {
		t.Errorf("Expected c1/nope, got %s/%s", schedErr.Source, schedErr.Port)
	}
}

func TestCollectInputs_MissingDependency(t *testing.T) {
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(newCounter()))

	_, err := s.collectInputs("add", &pass{outputs: map[string]map[string]value.Value{}})

	var schedErr *Error
	if !errors.As(err, &schedErr) || schedErr.Kind != ErrMissingDependency {
		t.Fatalf("Expected ErrMissingDependency, got %v", err)
	}
	if schedErr.Node != "add" {
		t.Errorf("Expected add as the requiring node, got %s", schedErr.Node)
	}
	if !strings.Contains(err.Error(), "required by") {
		t.Errorf("Unexpected message %q", err)
	}
}

func TestCollectInputs_FallsBackToCache(t *testing.T) {
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(newCounter()))
	s.Cache().Store("c1", Signature{1}, map[string]value.Value{"output": value.Number(4)})
	s.Cache().Store("c2", Signature{2}, map[string]value.Value{"output": value.Number(5)})

	// pass results win over the cache
	p := &pass{outputs: map[string]map[string]value.Value{
		"c2": {"output": value.Number(6)},
	}}
	inputs, err := s.collectInputs("add", p)
	if err != nil {
		t.Fatalf("collectInputs failed: %v", err)
	}

	lhs, _ := inputs["lhs"].AsNumber()
	rhs, _ := inputs["rhs"].AsNumber()
	if lhs != 4 || rhs != 6 {
		t.Errorf("Expected lhs=4 rhs=6, got lhs=%v rhs=%v", lhs, rhs)
	}
}

func TestEvaluate_CacheCorruption(t *testing.T) {
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(newCounter()))
	if _, err := s.Evaluate(nil, EvaluateOptions{}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	sig, _ := s.Cache().Signature("c1")
	s.Cache().Store("c1", sig, nil)

	_, err := s.Evaluate(nil, EvaluateOptions{Targets: []string{"c1"}})
	if !errors.Is(err, ErrCacheCorruption) {
		t.Errorf("Expected ErrCacheCorruption, got %v", err)
	}
}

func TestEvaluate_UnknownType(t *testing.T) {
	g := graph.New("unknown")
	g.AddNode(graph.NewNode("n", "does.not.exist"))

	_, err := NewScheduler(g, registry.New()).Evaluate(nil, EvaluateOptions{})

	if !errors.Is(err, registry.ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType, got %v", err)
	}
}

type progressCall struct {
	done, total int
	key         string
}

func TestEvaluate_Progress(t *testing.T) {
	s := NewScheduler(arithmetic(t), testRegistry(newCounter()))

	var calls []progressCall
	_, err := s.Evaluate(nil, EvaluateOptions{
		Targets:  []string{"add"},
		Progress: func(done, total int, key string) { calls = append(calls, progressCall{done, total, key}) },
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(calls) != 4 {
		t.Fatalf("Expected 4 progress calls, got %v", calls)
	}
	if calls[0] != (progressCall{0, 3, ""}) {
		t.Errorf("Expected (0, 3, \"\") first, got %v", calls[0])
	}
	seen := make(map[string]int)
	for i, call := range calls[1:] {
		if call.done != i+1 || call.total != 3 {
			t.Errorf("Call %d: expected (%d, 3), got %v", i+1, i+1, call)
		}
		seen[call.key]++
	}
	for _, key := range []string{"c1", "c2", "add"} {
		if seen[key] != 1 {
			t.Errorf("Expected one completion for %s, got %d", key, seen[key])
		}
	}
	// sibling order is unspecified, only the dependent must come last
	if last := calls[3].key; last != "add" {
		t.Errorf("Expected add to complete last, got %s", last)
	}
}

func TestEvaluate_TextParameterBytesInvalidate(t *testing.T) {
	r := registry.New()
	r.MustRegister("test.text", registry.HandlerFunc(
		func(node *graph.Node, _ map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
			v, _ := node.Parameter("text")
			return map[string]value.Value{"output": v}, nil
		}))
	r.MustRegister("test.pass", registry.HandlerFunc(
		func(_ *graph.Node, inputs map[string]value.Value, _ registry.ExecutionContext) (map[string]value.Value, error) {
			return map[string]value.Value{"output": inputs["in"]}, nil
		}))

	g := graph.New("bytes")
	for _, n := range []*graph.Node{
		graph.NewNode("a", "test.text").WithParameter("text", value.Text("\xff")),
		graph.NewNode("b", "test.pass"),
		graph.NewNode("c", "test.pass"),
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	connect(t, g, "a", "output", "b", "in")
	connect(t, g, "b", "output", "c", "in")

	s := NewScheduler(g, r)
	if _, err := s.Evaluate(nil, EvaluateOptions{}); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	node, _ := g.Node("a")
	node.UpdateParameters(map[string]value.Value{"text": value.Text("\xfe")})
	g.MarkDirty("a")

	var stats Stats
	results, err := s.Evaluate(nil, EvaluateOptions{Stats: &stats})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	got, _ := results.Value("c", "output")
	if text, _ := got.AsText(); text != "\xfe" {
		t.Errorf("Expected c to see the new bytes, got %q", text)
	}
	if stats.Reused != 0 {
		t.Errorf("Expected every node recomputed, got %d reused", stats.Reused)
	}
}

func TestEvaluate_UnknownTargets(t *testing.T) {
	c := newCounter()
	s := NewScheduler(arithmetic(t), testRegistry(c))

	called := false
	results, err := s.Evaluate(nil, EvaluateOptions{
		Targets:  []string{"ghost"},
		Progress: func(int, int, string) { called = true },
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 0 || called {
		t.Errorf("Expected empty result and no progress, got %v (progress=%v)", results, called)
	}

	results, err = s.Evaluate(nil, EvaluateOptions{Targets: []string{"ghost", "c2", "c2"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 1 || number(t, results, "c2") != 3 {
		t.Errorf("Expected only c2, got %v", results)
	}
}

func TestEvaluate_Cycle(t *testing.T) {
	c := newCounter()
	g := arithmetic(t)
	connect(t, g, "mul", "output", "c1", "in")
	s := NewScheduler(g, testRegistry(c))

	called := false
	_, err := s.Evaluate(nil, EvaluateOptions{Progress: func(int, int, string) { called = true }})

	if !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("Expected ErrCycleDetected, got %v", err)
	}
	if called || c.get("c2") != 0 {
		t.Error("Expected no side effects before the cycle was reported")
	}
}

func TestEvaluate_StatePersistsAcrossCalls(t *testing.T) {
	r := registry.New()
	r.MustRegister("test.tick", registry.HandlerFunc(
		func(node *graph.Node, inputs map[string]value.Value, ec registry.ExecutionContext) (map[string]value.Value, error) {
			n, _ := ec.State().Load("ticks")
			count, _ := n.(int)
			count++
			ec.State().Store("ticks", count)
			return map[string]value.Value{"output": value.Number(float64(count))}, nil
		}))
	g := graph.New("state")
	g.AddNode(graph.NewNode("t", "test.tick"))
	s := NewScheduler(g, r)
	rc := NewContext(context.Background(), g, nil, nil)

	s.Evaluate(rc, EvaluateOptions{Force: true})
	results, err := s.Evaluate(rc, EvaluateOptions{Force: true})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if got := number(t, results, "t"); got != 2 {
		t.Errorf("Expected state to persist between evaluations, got %v", got)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	g := arithmetic(t)
	s := NewScheduler(g, testRegistry(newCounter()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Evaluate(NewContext(ctx, g, nil, nil), EvaluateOptions{})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEvaluate_ParallelMatchesSequential(t *testing.T) {
	build := func() *graph.Graph {
		g := arithmetic(t)
		// widen the graph so ranks have several members
		for _, k := range []string{"d1", "d2", "d3"} {
			g.AddNode(graph.NewNode(k, "test.multiply").WithParameter("rhs", value.Number(2)))
			connect(t, g, "c1", "output", k, "lhs")
		}
		g.AddNode(graph.NewNode("sum", "test.add"))
		connect(t, g, "d1", "output", "sum", "lhs")
		connect(t, g, "d2", "output", "sum", "rhs")
		return g
	}

	sequential, err := NewScheduler(build(), testRegistry(newCounter())).Evaluate(nil, EvaluateOptions{})
	if err != nil {
		t.Fatalf("sequential Evaluate failed: %v", err)
	}

	c := newCounter()
	g := build()
	s := NewScheduler(g, testRegistry(c), WithWorkers(4))
	var mu sync.Mutex
	var keys []string
	parallel, err := s.Evaluate(nil, EvaluateOptions{Progress: func(done, total int, key string) {
		mu.Lock()
		defer mu.Unlock()
		if key != "" {
			keys = append(keys, key)
		}
	}})
	if err != nil {
		t.Fatalf("parallel Evaluate failed: %v", err)
	}

	for key := range sequential {
		if number(t, sequential, key) != number(t, parallel, key) {
			t.Errorf("Mismatch for %s: %v vs %v", key, number(t, sequential, key), number(t, parallel, key))
		}
	}
	if len(keys) != g.Len() {
		t.Errorf("Expected progress for %d nodes, got %v", g.Len(), keys)
	}
	if len(g.Dirty()) != 0 {
		t.Errorf("Expected all nodes clean, got %v", g.Dirty())
	}

	// second parallel pass is fully cached
	var stats Stats
	s.Evaluate(nil, EvaluateOptions{Stats: &stats})
	if stats.Evaluated != 0 || c.get("d3") != 1 {
		t.Errorf("Expected full reuse, got %+v (d3 ran %d times)", stats, c.get("d3"))
	}
}

func TestRanks(t *testing.T) {
	g := arithmetic(t)
	s := NewScheduler(g, registry.New())
	order, _ := g.TopologicalOrder(nil)

	levels := s.ranks(order)

	want := [][]string{{"c1", "c2"}, {"add"}, {"mul"}}
	if len(levels) != len(want) {
		t.Fatalf("Expected %d ranks, got %v", len(want), levels)
	}
	for i := range want {
		if !slices.Equal(levels[i], want[i]) {
			t.Errorf("Rank %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}
