package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/timeline"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type countRecorder struct {
	mu        sync.Mutex
	delivered map[string]int
	failed    int
	dropped   int
}

func (c *countRecorder) Delivered(sink string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delivered == nil {
		c.delivered = map[string]int{}
	}
	c.delivered[sink]++
	if err != nil {
		c.failed++
	}
}

func (c *countRecorder) Dropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &FakeSink{}
	d := NewDispatcher([]Sink{sink}, 16, zap.NewNop(), nil)

	store := timeline.New(nil, nil, zap.NewNop())
	store.OnChange(d.Enqueue)
	_, _ = store.Observe(t0, logic.StateOn)
	_, _ = store.Observe(t0.Add(10*time.Minute), logic.StateOn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx) // drains and returns

	events := sink.Events()
	require.Len(t, events, 2)
	require.Len(t, events[0].Changes, 1)
	require.Len(t, events[1].Changes, 2)
	require.Equal(t, logic.ChangeBackfill, events[1].Changes[0].Kind)
	require.Equal(t, logic.Entry{Slot: t0.Add(10 * time.Minute), State: logic.StateOn}, events[1].Latest)
}

func TestDispatcherCarriesStoreLatestOnUpgrade(t *testing.T) {
	sink := &FakeSink{}
	d := NewDispatcher([]Sink{sink}, 16, zap.NewNop(), nil)

	store := timeline.New(nil, nil, zap.NewNop())
	store.OnChange(d.Enqueue)
	_, _ = store.Observe(t0, logic.StateOff)
	_, _ = store.Observe(t0, logic.StateOn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	events := sink.Events()
	require.Len(t, events, 2)
	require.Equal(t, logic.StateOff, events[0].Latest.State)
	require.Equal(t, logic.StateOn, events[1].Latest.State)
}

func TestDispatcherLatestFromPreloadedTimeline(t *testing.T) {
	tl := logic.NewTimeline()
	tl.Put(t0, logic.StateOn)
	tl.Put(t0.Add(5*time.Minute), logic.StateOff)
	tl.Put(t0.Add(10*time.Minute), logic.StateOff)

	sink := &FakeSink{}
	d := NewDispatcher([]Sink{sink}, 16, zap.NewNop(), nil)
	store := timeline.New(tl, nil, zap.NewNop())
	store.OnChange(d.Enqueue)

	// A late report upgrades an older slot; the newest slot is unchanged.
	_, err := store.Observe(t0.Add(5*time.Minute), logic.StateOn)
	require.NoError(t, err)
	// A report older than the loaded history backfills behind it.
	_, err = store.Observe(t0.Add(-10*time.Minute), logic.StateOn)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	events := sink.Events()
	require.Len(t, events, 2)
	want := logic.Entry{Slot: t0.Add(10 * time.Minute), State: logic.StateOff}
	require.Equal(t, want, events[0].Latest)
	require.Equal(t, want, events[1].Latest)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &countRecorder{}
	d := NewDispatcher([]Sink{&FakeSink{}}, 1, zap.NewNop(), rec)

	ch := []logic.Change{{Slot: t0, State: logic.StateOn, Kind: logic.ChangeInsert}}
	latest := logic.Entry{Slot: t0, State: logic.StateOn}
	d.Enqueue(ch, latest)
	d.Enqueue(ch, latest)
	d.Enqueue(ch, latest)

	require.Equal(t, 2, d.Dropped())
	require.Equal(t, 2, rec.dropped)
}

func TestDispatcherContinuesAfterSinkError(t *testing.T) {
	bad := &FakeSink{SinkName: "bad", Err: errors.New("unreachable")}
	good := &FakeSink{SinkName: "good"}
	rec := &countRecorder{}
	d := NewDispatcher([]Sink{bad, good}, 4, zap.NewNop(), rec)

	d.Enqueue([]logic.Change{{Slot: t0, State: logic.StateOn, Kind: logic.ChangeInsert}}, logic.Entry{Slot: t0, State: logic.StateOn})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	require.Len(t, good.Events(), 1)
	require.Equal(t, 1, rec.failed)
	require.Equal(t, 1, rec.delivered["good"])
	require.Equal(t, []string{"bad", "good"}, d.Sinks())
}

func TestDispatcherRunDeliversLive(t *testing.T) {
	sink := &FakeSink{}
	d := NewDispatcher([]Sink{sink}, 4, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Enqueue([]logic.Change{{Slot: t0, State: logic.StateOn, Kind: logic.ChangeInsert}}, logic.Entry{Slot: t0, State: logic.StateOn})
	require.Eventually(t, func() bool { return len(sink.Events()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestDispatcherWithoutSinksIgnoresEvents(t *testing.T) {
	d := NewDispatcher(nil, 1, zap.NewNop(), nil)
	for i := 0; i < 5; i++ {
		d.Enqueue([]logic.Change{{Slot: t0, State: logic.StateOn}}, logic.Entry{Slot: t0, State: logic.StateOn})
	}
	require.Equal(t, 0, d.Dropped())
}
