package fanout

import (
	"context"
	"sync"
)

// FakeSink records delivered events for test assertions.
type FakeSink struct {
	SinkName string
	Err      error

	mu     sync.Mutex
	events []Event
}

// Name returns SinkName, or "fake".
func (f *FakeSink) Name() string {
	if f.SinkName == "" {
		return "fake"
	}
	return f.SinkName
}

// Deliver records ev and returns Err.
func (f *FakeSink) Deliver(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.Err
}

// Events returns a copy of the recorded events.
func (f *FakeSink) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}
