package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func publishN(t *testing.T, pub *SSEPublisher, topic string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if err := pub.Publish(topic, EventProgress, EvaluationProgress{Done: i, Total: n}); err != nil {
			t.Fatalf("Failed to publish event %d: %v", i, err)
		}
	}
}

func next(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
	return Event{}
}

func expectNone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case event := <-sub.Events():
		t.Errorf("Received unexpected event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBuffer(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureTopic("test", TopicConfig{BufferSize: 3, ReplayAll: true})

	publishN(t, pub, "test", 5)

	sub, err := pub.Subscribe(context.Background(), "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	// The last three of five
	for want := 3; want <= 5; want++ {
		if event := next(t, sub); event.Version != want {
			t.Errorf("Expected version %d, got %d", want, event.Version)
		}
	}
	expectNone(t, sub)
}

func TestReplayLastOnly(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	publishN(t, pub, TopicEvaluationStatus, 3)

	sub, err := pub.Subscribe(context.Background(), TopicEvaluationStatus)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	if event := next(t, sub); event.Version != 3 {
		t.Errorf("Expected version 3, got %d", event.Version)
	}
	expectNone(t, sub)
}

func TestNoBuffer(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	publishN(t, pub, TopicEvaluationProgress, 3)

	sub, err := pub.Subscribe(context.Background(), TopicEvaluationProgress)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()
	expectNone(t, sub)

	if err := pub.Publish(TopicEvaluationProgress, EventProgress, EvaluationProgress{Done: 4, Total: 4, Node: "blur"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	event := next(t, sub)
	if event.Version != 4 || event.Topic != TopicEvaluationProgress {
		t.Errorf("Expected version 4 on %s, got %d on %s", TopicEvaluationProgress, event.Version, event.Topic)
	}
	var progress EvaluationProgress
	if err := json.Unmarshal(event.Data, &progress); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if progress.Node != "blur" || progress.Done != 4 {
		t.Errorf("Unexpected payload %+v", progress)
	}
}

func TestSubscribe_ContextCancel(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := pub.Subscribe(ctx, "test"); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if n := pub.Subscribers("test"); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for pub.Subscribers("test") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected the subscription to close after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClose(t *testing.T) {
	pub := NewSSEPublisher()
	sub, err := pub.Subscribe(context.Background(), "test")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	pub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("Expected the event channel to be closed")
	}
	if err := pub.Publish("test", "event", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := pub.Subscribe(context.Background(), "test"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	event := Event{Topic: TopicEvaluationStatus, Type: EventCompleted, Data: json.RawMessage(`{"total":2}`), Version: 7}

	if err := WriteSSE(&buf, event); err != nil {
		t.Fatalf("WriteSSE failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "event: completed\ndata: {") || !strings.HasSuffix(out, "}\n\n") {
		t.Errorf("Unexpected frame %q", out)
	}
	if !strings.Contains(out, `"version":7`) {
		t.Errorf("Expected version in frame, got %q", out)
	}
}
