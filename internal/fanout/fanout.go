// Package fanout delivers slot changes to external sinks (MQTT, Redis,
// Postgres, Kafka) off the ingestion path.
package fanout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Event is one batch of slot writes produced by a single observation.
type Event struct {
	Changes []logic.Change
	// Latest is the newest slot after the batch was applied.
	Latest logic.Entry
	At     time.Time
}

// Sink receives events in the order the timeline applied them.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Recorder observes delivery outcomes.
type Recorder interface {
	Delivered(sink string, err error)
	Dropped()
}

// DefaultQueue is the default number of buffered events.
const DefaultQueue = 256

// Dispatcher queues events and delivers them to every sink from one goroutine.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	log     *zap.Logger
	rec     Recorder
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	dropped int
}

// NewDispatcher creates a dispatcher with a queue of size n.
func NewDispatcher(sinks []Sink, n int, log *zap.Logger, rec Recorder) *Dispatcher {
	if n <= 0 {
		n = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, n),
		log:     log.Named("fanout"),
		rec:     rec,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Enqueue queues changes without blocking. It has the timeline.Listener
// signature, so latest is the store's newest slot after the write. When the
// queue is full the batch is dropped and counted.
func (d *Dispatcher) Enqueue(changes []logic.Change, latest logic.Entry) {
	if len(changes) == 0 || len(d.sinks) == 0 {
		return
	}

	ev := Event{Changes: changes, Latest: latest, At: d.now()}

	select {
	case d.queue <- ev:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		if d.rec != nil {
			d.rec.Dropped()
		}
		d.log.Warn("queue full, dropping event", zap.Int("changes", len(changes)))
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers queued events until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	// Sinks get a fresh context; the run context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Deliver(sctx, ev)
		cancel()
		if d.rec != nil {
			d.rec.Delivered(s.Name(), err)
		}
		if err != nil {
			d.log.Warn("delivery failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}
