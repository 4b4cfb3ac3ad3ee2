package watcher

import (
	"context"
	"time"

	"github.com/ritzau/hesiod/pkg/logging"
)

// Debouncer coalesces bursts of change events. A burst is flushed once no
// event has arrived for the quiet period, or once maxWait has passed since
// its first event, whichever comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	if maxWait < quietPeriod {
		maxWait = quietPeriod
	}
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 1),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	quiet := time.NewTimer(d.quietPeriod)
	deadline := time.NewTimer(d.maxWait)
	quiet.Stop()
	deadline.Stop()

	var pending *ChangeEvent

	flush := func() {
		quiet.Stop()
		deadline.Stop()
		if pending == nil {
			return
		}
		event := *pending
		pending = nil
		logging.Debug("flushing coalesced changes", "path", event.Path, "count", event.Count)

		select {
		case d.output <- event:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if pending == nil {
				pending = &event
				deadline.Reset(d.maxWait)
			} else {
				pending.Count += event.Count
				pending.Timestamp = event.Timestamp
			}
			quiet.Reset(d.quietPeriod)

		case <-quiet.C:
			flush()

		case <-deadline.C:
			flush()
		}
	}
}

// Output returns the channel of debounced events. It is closed when the
// input closes or the context is done.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
