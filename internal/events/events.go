// Package events publishes domain events after state changes commit.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	PolicyCreated         = "policy.created"
	PolicyPaidOut         = "policy.paid_out"
	FloodLevelUpdated     = "flood.level_updated"
	FloodThresholdUpdated = "flood.threshold_updated"
)

// Event is a single domain notification. Data is encoded as JSON on the wire.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(typ string, data map[string]any) Event {
	return Event{Type: typ, Timestamp: time.Now().UTC(), Data: data}
}

// Publisher delivers events. Publish failures never undo the state change
// that produced the event.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() {}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() {}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
