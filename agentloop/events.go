package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of runtime event.
type EventKind string

const (
	EventExecutionStart EventKind = "execution_start"
	EventModelRequest   EventKind = "model_request"
	EventModelResponse  EventKind = "model_response"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventLoopDetection  EventKind = "loop_detection"
	EventWarning        EventKind = "warning"
	EventExecutionEnd   EventKind = "execution_end"
)

// Event is emitted by the runtime as an execution progresses. Tool call end
// events carry the full tool output, before truncation.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	Iteration   int            `json:"iteration"`
	Data        map[string]any `json:"data,omitempty"`
}

// Observer receives runtime events. Observe must not block and must be safe
// for concurrent use: independent tools report from their own goroutines.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// ChannelObserver delivers events to a host over a buffered channel. When
// the buffer is full, events are dropped rather than stalling the runtime.
type ChannelObserver struct {
	ch      chan Event
	closed  bool
	dropped int
	mu      sync.Mutex
}

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(bufferSize int) *ChannelObserver {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelObserver{ch: make(chan Event, bufferSize)}
}

// Observe implements Observer.
func (o *ChannelObserver) Observe(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- e:
	default:
		o.dropped++
	}
}

// Events returns the read side of the channel.
func (o *ChannelObserver) Events() <-chan Event {
	return o.ch
}

// Dropped returns how many events did not fit in the buffer.
func (o *ChannelObserver) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Close closes the channel. Safe to call multiple times.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
