// Package pubsub fans evaluation events out to any number of subscribers,
// replaying recent events to late joiners.
package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by an evaluation session
const (
	TopicEvaluationStatus   = "evaluation_status"
	TopicEvaluationProgress = "evaluation_progress"
	TopicProject            = "project"
)

// Event types
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventProgress  = "progress"
	EventLoaded    = "loaded"
	EventChanged   = "changed"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // per topic, increasing
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	Topic() string
	Events() <-chan Event
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic. Cancelling ctx closes
	// the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	Close() error
}

// EvaluationStatus is the payload of TopicEvaluationStatus
type EvaluationStatus struct {
	EvaluationID string   `json:"evaluation_id,omitempty"`
	Targets      []string `json:"targets,omitempty"`
	Total        int      `json:"total"`
	Evaluated    int      `json:"evaluated"`
	Reused       int      `json:"reused"`
	DurationMs   int64    `json:"duration_ms"`
	Error        string   `json:"error,omitempty"`
}

// EvaluationProgress is the payload of TopicEvaluationProgress
type EvaluationProgress struct {
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Node  string `json:"node,omitempty"`
}

// ProjectStatus is the payload of TopicProject
type ProjectStatus struct {
	Name  string   `json:"name"`
	Nodes int      `json:"nodes"`
	Dirty []string `json:"dirty"`
}
