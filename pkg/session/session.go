// Package session owns one loaded project together with its cache and
// handler state, and serializes every evaluation and edit made to it.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ritzau/hesiod/pkg/cycles"
	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/project"
	"github.com/ritzau/hesiod/pkg/pubsub"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/runtime"
	"github.com/ritzau/hesiod/pkg/value"
)

// Session serializes access to a project. The graph is only touched while
// the session lock is held, so the web API, the watcher and the CLI can
// share one session.
type Session struct {
	id        string
	registry  *registry.Registry
	cache     *runtime.Cache
	state     *registry.State
	publisher pubsub.Publisher
	settings  runtime.Settings
	workers   int

	mu        sync.Mutex // Prevent concurrent evaluations and edits
	project   *project.Project
	scheduler *runtime.Scheduler
	last      *runtime.Stats
}

// Option configures a Session
type Option func(*Session)

// WithPublisher streams evaluation events to pub
func WithPublisher(pub pubsub.Publisher) Option {
	return func(s *Session) { s.publisher = pub }
}

func WithSettings(settings runtime.Settings) Option {
	return func(s *Session) { s.settings = settings }
}

// WithState shares handler state, e.g. one prepared with nodes.AssetRootKey
func WithState(state *registry.State) Option {
	return func(s *Session) { s.state = state }
}

// WithWorkers sets how many nodes of one rank may run at once
func WithWorkers(n int) Option {
	return func(s *Session) { s.workers = n }
}

// New creates a session for p
func New(p *project.Project, reg *registry.Registry, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		registry: reg,
		cache:    runtime.NewCache(),
		state:    registry.NewState(),
		settings: runtime.DefaultSettings(),
		workers:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.install(p)
	logging.Debug("session created", "session", s.id, "project", p.Name, "workers", s.workers)
	return s
}

func (s *Session) install(p *project.Project) {
	s.project = p
	s.scheduler = runtime.NewScheduler(p.Graph, s.registry,
		runtime.WithCache(s.cache), runtime.WithWorkers(s.workers))
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Registry() *registry.Registry { return s.registry }

// Result is the outcome of one Evaluate call
type Result struct {
	Results runtime.Results
	Stats   runtime.Stats
}

// Evaluate brings targets up to date (every node when targets is nil).
// Evaluations on one session never overlap.
func (s *Session) Evaluate(ctx context.Context, targets []string, force bool) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publish(pubsub.TopicEvaluationStatus, pubsub.EventStarted, pubsub.EvaluationStatus{Targets: targets})

	settings := s.settings
	rc := runtime.NewContext(ctx, s.project.Graph, &settings, s.state)

	var stats runtime.Stats
	results, err := s.scheduler.Evaluate(rc, runtime.EvaluateOptions{
		Targets: targets,
		Force:   force,
		Stats:   &stats,
		Progress: func(done, total int, key string) {
			s.publish(pubsub.TopicEvaluationProgress, pubsub.EventProgress,
				pubsub.EvaluationProgress{Done: done, Total: total, Node: key})
		},
	})
	if err != nil {
		s.publish(pubsub.TopicEvaluationStatus, pubsub.EventFailed,
			pubsub.EvaluationStatus{Targets: targets, Error: err.Error()})
		return nil, err
	}

	s.last = &stats
	s.publish(pubsub.TopicEvaluationStatus, pubsub.EventCompleted, pubsub.EvaluationStatus{
		EvaluationID: stats.EvaluationID,
		Targets:      targets,
		Total:        stats.Total,
		Evaluated:    stats.Evaluated,
		Reused:       stats.Reused,
		DurationMs:   stats.Duration.Milliseconds(),
	})
	return &Result{Results: results, Stats: stats}, nil
}

// UpdateParameters merges updates into a node's parameters and marks it dirty
func (s *Session) UpdateParameters(key string, updates map[string]value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.project.Graph.Node(key)
	if !ok {
		return &graph.Error{Kind: graph.ErrUnknownNode, Key: key}
	}
	node.UpdateParameters(updates)
	s.project.Graph.MarkDirty(key)
	logging.Debug("parameters updated", "session", s.id, "node", key, "count", len(updates))
	s.publishProject(pubsub.EventChanged)
	return nil
}

func (s *Session) Connect(sourceNode, sourcePort, targetNode, targetPort string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.project.Graph.Connect(sourceNode, sourcePort, targetNode, targetPort); err != nil {
		return err
	}
	s.publishProject(pubsub.EventChanged)
	return nil
}

func (s *Session) Disconnect(targetNode, targetPort string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.project.Graph.Disconnect(targetNode, targetPort)
	s.publishProject(pubsub.EventChanged)
}

// Replace swaps in a whole new project. Cached results belong to the old
// graph and are dropped; handler state is kept.
func (s *Session) Replace(p *project.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
	s.install(p)
	s.last = nil
	logging.Info("project replaced", "session", s.id, "project", p.Name, "nodes", p.Graph.Len())
	s.publishProject(pubsub.EventLoaded)
}

// Cycles reports every cycle in the current graph
func (s *Session) Cycles() []cycles.Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cycles.FindCycles(s.project.Graph)
}

func (s *Session) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project.Graph.Dirty()
}

// CacheKeys lists the nodes with a cache entry
func (s *Session) CacheKeys() []string {
	return s.cache.Keys()
}

// ClearCache drops every cached result, so the next evaluation recomputes
// everything
func (s *Session) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
}

// LastStats returns the statistics of the last successful evaluation
func (s *Session) LastStats() (runtime.Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return runtime.Stats{}, false
	}
	return *s.last, true
}

// Marshal encodes the current project document
func (s *Session) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return project.Marshal(s.project)
}

// Save writes the current project to path
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return project.Save(s.project, path)
}

// Announce publishes the current project state, e.g. right after startup
func (s *Session) Announce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishProject(pubsub.EventLoaded)
}

// publishProject must be called with s.mu held
func (s *Session) publishProject(eventType string) {
	s.publish(pubsub.TopicProject, eventType, pubsub.ProjectStatus{
		Name:  s.project.Name,
		Nodes: s.project.Graph.Len(),
		Dirty: s.project.Graph.Dirty(),
	})
}

func (s *Session) publish(topic, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(topic, eventType, data); err != nil {
		logging.Warn("failed to publish event", "session", s.id, "topic", topic, "error", err)
	}
}
