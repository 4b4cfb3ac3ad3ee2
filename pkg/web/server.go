// Package web serves an evaluation session over HTTP: project inspection,
// parameter edits, evaluation and a Server-Sent Events stream of progress.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/hesiod/pkg/cycles"
	"github.com/ritzau/hesiod/pkg/graph"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/pubsub"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/runtime"
	"github.com/ritzau/hesiod/pkg/session"
	"github.com/ritzau/hesiod/pkg/value"
)

// Server represents the web server
type Server struct {
	router    *mux.Router
	session   *session.Session
	publisher pubsub.Publisher
	topics    map[string]bool
}

// NewServer creates a server over sess. Events are streamed from pub, which
// should be the publisher the session was created with.
func NewServer(sess *session.Session, pub pubsub.Publisher) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		session:   sess,
		publisher: pub,
		topics:    make(map[string]bool, len(pubsub.DefaultTopics)),
	}
	for topic := range pubsub.DefaultTopics {
		s.topics[topic] = true
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/project", s.handleProject).Methods("GET")
	s.router.HandleFunc("/api/types", s.handleTypes).Methods("GET")
	s.router.HandleFunc("/api/types/{type}", s.handleType).Methods("GET")
	s.router.HandleFunc("/api/evaluate", s.handleEvaluate).Methods("POST")
	s.router.HandleFunc("/api/nodes/{key}/parameters", s.handleParameters).Methods("PATCH")
	s.router.HandleFunc("/api/connections", s.handleConnect).Methods("POST")
	s.router.HandleFunc("/api/connections/{node}/{port}", s.handleDisconnect).Methods("DELETE")
	s.router.HandleFunc("/api/dirty", s.handleDirty).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
	s.router.HandleFunc("/api/cache", s.handleCache).Methods("GET")
	s.router.HandleFunc("/api/cache", s.handleClearCache).Methods("DELETE")
	s.router.HandleFunc("/api/stats", s.handleStats).Methods("GET")
}

// ServeHTTP makes the server usable with httptest and custom listeners
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.Info("web server started", "url", fmt.Sprintf("http://localhost:%d", port))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Info("web server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !s.topics[topic] {
		writeError(w, http.StatusNotFound, "unknown_topic", fmt.Errorf("unknown topic %q", topic))
		return
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Initial comment establishes the stream before the first event
	fmt.Fprintf(w, ": connected\n\n")
	flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.WarnContext(r.Context(), "error writing SSE event", "topic", topic, "error", err)
				return
			}
			flush()
		}
	}
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	data, err := s.session.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// typeInfo is one entry of the node type listing
type typeInfo struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Metadata    *registry.NodeMetadata `json:"metadata,omitempty"`
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	reg := s.session.Registry()
	types := []typeInfo{}
	for _, name := range reg.Types() {
		def, err := reg.Get(name)
		if err != nil {
			continue
		}
		types = append(types, typeInfo{Type: def.Type, Description: def.Description, Metadata: def.Metadata})
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleType(w http.ResponseWriter, r *http.Request) {
	meta, err := s.session.Registry().Describe(mux.Vars(r)["type"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type evaluateRequest struct {
	Targets []string `json:"targets"`
	Force   bool     `json:"force"`
}

type evaluateResponse struct {
	Results    runtime.Results `json:"results"`
	Stats      runtime.Stats   `json:"stats"`
	DurationMs int64           `json:"duration_ms"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	res, err := s.session.Evaluate(r.Context(), req.Targets, req.Force)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluateResponse{
		Results:    res.Results,
		Stats:      res.Stats,
		DurationMs: res.Stats.Duration.Milliseconds(),
	})
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	var updates map[string]value.Value
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid parameters: %w", err))
		return
	}
	if err := s.session.UpdateParameters(mux.Vars(r)["key"], updates); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dirty": s.session.Dirty()})
}

type connectRequest struct {
	SourceNode string `json:"source_node"`
	SourcePort string `json:"source_port"`
	TargetNode string `json:"target_node"`
	TargetPort string `json:"target_port"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid connection: %w", err))
		return
	}
	if req.SourcePort == "" || req.TargetPort == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("source_port and target_port are required"))
		return
	}
	if err := s.session.Connect(req.SourceNode, req.SourcePort, req.TargetNode, req.TargetPort); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"dirty": s.session.Dirty()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.session.Disconnect(vars["node"], vars["port"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDirty(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"dirty": s.session.Dirty()})
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	found := s.session.Cycles()
	if found == nil {
		found = []cycles.Cycle{}
	}
	writeJSON(w, http.StatusOK, map[string][]cycles.Cycle{"cycles": found})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"keys": s.session.CacheKeys()})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.session.ClearCache()
	logging.InfoContext(r.Context(), "cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.session.LastStats()
	if !ok {
		writeError(w, http.StatusNotFound, "no_evaluation", errors.New("nothing has been evaluated yet"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// writeFailure maps an error family to an HTTP status. Scheduler errors are
// checked first since a failing handler may wrap anything.
func writeFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeError(w, status, kind, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, runtime.ErrMissingDependency):
		return http.StatusUnprocessableEntity, "missing_dependency"
	case errors.Is(err, runtime.ErrMissingOutputPort):
		return http.StatusUnprocessableEntity, "missing_output_port"
	case errors.Is(err, runtime.ErrInvalidHandlerOutput):
		return http.StatusUnprocessableEntity, "invalid_handler_output"
	case errors.Is(err, runtime.ErrCacheCorruption):
		return http.StatusUnprocessableEntity, "cache_corruption"
	case errors.Is(err, runtime.ErrScheduler):
		return http.StatusUnprocessableEntity, "node_execution_failed"
	case errors.Is(err, graph.ErrUnknownNode):
		return http.StatusNotFound, "unknown_node"
	case errors.Is(err, registry.ErrUnknownType):
		return http.StatusNotFound, "unknown_type"
	case errors.Is(err, registry.ErrMetadataUnavailable):
		return http.StatusNotFound, "metadata_unavailable"
	case errors.Is(err, graph.ErrCycleDetected):
		return http.StatusConflict, "cycle_detected"
	case errors.Is(err, graph.ErrGraph):
		return http.StatusConflict, "graph"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
