package events

import (
	"context"
	"sync"
)

// Recorded is one captured event.
type Recorded struct {
	Topic string
	Key   string
	Event any
}

// Recorder keeps published events in memory. Used by tests and local runs.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Topic: topic, Key: key, Event: event})
	return nil
}

// Events returns a snapshot of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Topic returns the events published to one topic.
func (r *Recorder) Topic(topic string) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
