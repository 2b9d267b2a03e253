// Package timeline owns the process-wide power timeline: a logic.Timeline
// behind a single mutex, persisted after every mutation.
package timeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// ErrPersist wraps save failures. The in-memory timeline has still been
// updated and remains authoritative until the next successful save.
var ErrPersist = errors.New("timeline: persist failed")

// Persister writes the full timeline to durable storage.
type Persister interface {
	Save(tl *logic.Timeline) error
}

// Recorder receives store activity for metrics. All methods must be cheap;
// they are called with the store lock held.
type Recorder interface {
	Observed(source string, state logic.State)
	Changed(changes []logic.Change)
	Saved(d time.Duration, err error)
}

// Listener is notified of slot writes in the order they were applied, along
// with the newest slot after the write. It is called with the store lock held
// and must not block.
type Listener func(changes []logic.Change, latest logic.Entry)

// Result describes the effect of one observation.
type Result struct {
	Slot      time.Time
	Changes   []logic.Change
	Persisted bool
}

// Option configures a Store.
type Option func(*Store)

// WithRounding sets how Ingest maps instants to slots. Defaults to floor.
func WithRounding(r logic.Rounding) Option {
	return func(s *Store) { s.rounding = r }
}

// WithRecorder attaches a recorder. Several may be attached.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.rec = append(s.rec, r) }
}

// WithClock overrides time.Now for save bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store serialises every read and write of the timeline behind one mutex.
type Store struct {
	mu        sync.Mutex
	tl        *logic.Timeline
	persist   Persister
	rounding  logic.Rounding
	rec       recorders
	log       *zap.Logger
	now       func() time.Time
	lastSave  time.Time
	listeners []Listener
}

// New creates a Store around tl, which it takes ownership of.
func New(tl *logic.Timeline, p Persister, log *zap.Logger, opts ...Option) *Store {
	if tl == nil {
		tl = logic.NewTimeline()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		tl:       tl,
		persist:  p,
		rounding: logic.RoundFloor,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnChange registers a listener. Register listeners before the store is shared.
func (s *Store) OnChange(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Rounding returns the rounding mode used by Ingest.
func (s *Store) Rounding() logic.Rounding {
	return s.rounding
}

// Ingest rounds obs.At to its slot and observes it.
func (s *Store) Ingest(obs logic.Observation) (Result, error) {
	slot := s.rounding.Round(obs.At)
	s.rec.Observed(obs.Source, obs.State)
	return s.Observe(slot, obs.State)
}

// Observe records state for slot, backfilling skipped slots with OFF, and
// persists the timeline if anything changed.
func (s *Store) Observe(slot time.Time, state logic.State) (Result, error) {
	slot = logic.Floor(slot)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(slot, state)
}

// Sweep records OFF at mark when the timeline is empty or its newest slot is
// strictly older than mark. It reports whether a slot was written.
func (s *Store) Sweep(mark time.Time) (Result, bool, error) {
	mark = logic.Floor(mark)

	s.mu.Lock()
	defer s.mu.Unlock()
	if latest, ok := s.tl.Latest(); ok && !latest.Slot.Before(mark) {
		return Result{Slot: mark}, false, nil
	}
	s.rec.Observed("sweep", logic.StateOff)
	res, err := s.applyLocked(mark, logic.StateOff)
	return res, len(res.Changes) > 0, err
}

// Flush saves the timeline unconditionally.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) applyLocked(slot time.Time, state logic.State) (Result, error) {
	res := Result{Slot: slot}
	res.Changes = s.tl.Apply(slot, state)
	if len(res.Changes) == 0 {
		return res, nil
	}
	s.rec.Changed(res.Changes)
	if len(s.listeners) > 0 {
		latest, _ := s.tl.Latest()
		for _, l := range s.listeners {
			l(res.Changes, latest)
		}
	}

	if err := s.saveLocked(); err != nil {
		return res, err
	}
	res.Persisted = true
	return res, nil
}

func (s *Store) saveLocked() error {
	if s.persist == nil {
		return nil
	}
	start := time.Now()
	err := s.persist.Save(s.tl)
	s.rec.Saved(time.Since(start), err)
	if err != nil {
		s.log.Error("timeline save failed", zap.Error(err), zap.Int("slots", s.tl.Len()))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.lastSave = s.now()
	return nil
}

// Get returns the state of slot.
func (s *Store) Get(slot time.Time) (logic.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Get(slot)
}

// Latest returns the newest slot.
func (s *Store) Latest() (logic.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Latest()
}

// Earliest returns the oldest slot.
func (s *Store) Earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Earliest()
}

// Len returns the number of slots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Len()
}

// Entries returns all slots in ascending order.
func (s *Store) Entries() []logic.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Entries()
}

// Snapshot returns a deep copy of the timeline.
func (s *Store) Snapshot() *logic.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Clone()
}

// LastSave returns when the timeline was last persisted successfully.
func (s *Store) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}

// Status infers the live status at now. The lock is held only to read the
// newest slot.
func (s *Store) Status(now time.Time, grace time.Duration) logic.Verdict {
	latest, ok := s.Latest()
	return logic.InferLatest(latest, ok, now, grace)
}

type recorders []Recorder

func (rs recorders) Observed(source string, state logic.State) {
	for _, r := range rs {
		r.Observed(source, state)
	}
}

func (rs recorders) Changed(changes []logic.Change) {
	for _, r := range rs {
		r.Changed(changes)
	}
}

func (rs recorders) Saved(d time.Duration, err error) {
	for _, r := range rs {
		r.Saved(d, err)
	}
}
