// Package status provides a thread-safe view of the outlet-monitor daemon for
// the /index.json endpoint and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Outlet reports the live state of the power timeline.
type Outlet interface {
	Status(now time.Time, grace time.Duration) logic.Verdict
	Len() int
	LastSave() time.Time
}

// Config contains daemon configuration for display.
type Config struct {
	Rounding    string
	GraceMs     int64
	ExtraWaitMs int64
	HeartbeatMs int64
	DataFile    string
	Broker      string
	HTTPAddr    string
	DisplayTZ   string
	Sinks       []string
}

// Counts tallies observations and slot writes since startup.
type Counts struct {
	Reports      map[string]int // observations by source
	Inserts      int
	Upgrades     int
	Backfills    int
	SaveFailures int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Verdict       logic.Verdict
	Slots         int
	LastSave      time.Time
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	outlet Outlet
	grace  time.Duration
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config. outlet
// may be nil, in which case the verdict is always UNKNOWN.
func NewTracker(startTime time.Time, cfg Config, outlet Outlet) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Counts:    Counts{Reports: map[string]int{}},
		},
		outlet: outlet,
		grace:  time.Duration(cfg.GraceMs) * time.Millisecond,
		now:    time.Now,
	}
}

// Observed counts an observation from source. Together with Changed and
// Saved it makes Tracker a timeline.Recorder.
func (t *Tracker) Observed(source string, _ logic.State) {
	t.mu.Lock()
	t.snap.Counts.Reports[source]++
	t.mu.Unlock()
}

// Changed counts slot writes.
func (t *Tracker) Changed(changes []logic.Change) {
	t.mu.Lock()
	for _, c := range changes {
		switch c.Kind {
		case logic.ChangeInsert:
			t.snap.Counts.Inserts++
		case logic.ChangeUpgrade:
			t.snap.Counts.Upgrades++
		case logic.ChangeBackfill:
			t.snap.Counts.Backfills++
		}
	}
	t.mu.Unlock()
}

// Saved counts failed saves.
func (t *Tracker) Saved(_ time.Duration, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	t.snap.Counts.SaveFailures++
	t.mu.Unlock()
}

// SetOutlet attaches the timeline queried by Snapshot.
func (t *Tracker) SetOutlet(o Outlet) {
	t.mu.Lock()
	t.outlet = o
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	reports := make(map[string]int, len(s.Counts.Reports))
	for k, v := range s.Counts.Reports {
		reports[k] = v
	}
	s.Counts.Reports = reports
	outlet := t.outlet
	t.mu.RUnlock()

	s.Now = t.now()
	if outlet != nil {
		s.Verdict = outlet.Status(s.Now, t.grace)
		s.Slots = outlet.Len()
		s.LastSave = outlet.LastSave()
	} else {
		s.Verdict = logic.Verdict{Status: logic.StatusUnknown}
	}
	return s
}
