package supervisor

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType represents the type of submission event.
type EventType string

const (
	EventSubmitStart  EventType = "submit_start"
	EventSubmitDone   EventType = "submit_done"
	EventSubmitFailed EventType = "submit_failed"
	EventSubmitStale  EventType = "submit_stale"
)

// Event is published on every submission state change. The console uses it
// to refresh a provider's status line without reloading.
type Event struct {
	Type         EventType        `json:"type"`
	SubmissionID string           `json:"submission_id"`
	Provider     string           `json:"provider"`
	Timestamp    time.Time        `json:"timestamp"`
	Status       SubmissionStatus `json:"status,omitempty"`
	Rows         int              `json:"rows"`
	DurationMs   int64            `json:"duration_ms"`
	Message      string           `json:"message,omitempty"`
}

// EventBus manages event publishing and subscription for SSE consumers.
type EventBus struct {
	events      chan Event
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	once        sync.Once
}

// NewEventBus creates a new event bus with the specified buffer size.
func NewEventBus(bufferSize int) *EventBus {
	eb := &EventBus{
		events:      make(chan Event, bufferSize),
		subscribers: make(map[chan Event]struct{}),
		shutdown:    make(chan struct{}),
	}
	go eb.forward()
	return eb
}

func (eb *EventBus) forward() {
	for {
		select {
		case event, ok := <-eb.events:
			if !ok {
				return
			}
			eb.mu.RLock()
			subs := make([]chan Event, 0, len(eb.subscribers))
			for ch := range eb.subscribers {
				subs = append(subs, ch)
			}
			eb.mu.RUnlock()

			for _, ch := range subs {
				select {
				case ch <- event:
				default:
					// Slow subscriber, drop.
				}
			}
		case <-eb.shutdown:
			return
		}
	}
}

// Publish publishes an event. It never blocks; events are dropped when the
// buffer is full.
func (eb *EventBus) Publish(event Event) {
	select {
	case <-eb.shutdown:
		return
	default:
	}
	select {
	case eb.events <- event:
	default:
	}
}

// Subscribe creates a new subscription channel for SSE consumers.
func (eb *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 10)
	eb.mu.Lock()
	eb.subscribers[ch] = struct{}{}
	eb.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	if _, exists := eb.subscribers[ch]; exists {
		delete(eb.subscribers, ch)
		close(ch)
	}
	eb.mu.Unlock()
}

// Shutdown stops the forwarder and closes all subscriber channels.
func (eb *EventBus) Shutdown() {
	eb.once.Do(func() {
		close(eb.shutdown)

		eb.mu.Lock()
		for ch := range eb.subscribers {
			close(ch)
		}
		eb.subscribers = make(map[chan Event]struct{})
		eb.mu.Unlock()
	})
}

// FormatSSEEvent formats an event as a Server-Sent Events frame.
func FormatSSEEvent(event Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return "event: " + string(event.Type) + "\ndata: " + string(data) + "\n\n", nil
}
