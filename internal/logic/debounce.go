package logic

import "time"

// Transition is a debounced change of a sensed input.
type Transition struct {
	Time time.Time
	From State
	To   State
}

// Debouncer tracks a single sensed input and reports stable transitions.
// It is used for locally sensed power (GPIO probe) where contact bounce would
// otherwise produce spurious observations.
type Debouncer struct {
	duration     time.Duration
	stable       State
	pending      State
	pendingSince time.Time
	baselined    bool
}

// NewDebouncer creates a debouncer that requires a reading to hold for d
// before it is accepted.
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{duration: d}
}

// Process takes a new sample and returns a transition once a changed reading
// has held for the debounce duration. The first stable reading establishes
// the baseline and produces no transition.
func (d *Debouncer) Process(on bool, now time.Time) *Transition {
	state := boolToState(on)

	if !d.baselined {
		if d.pending != state {
			d.pending = state
			d.pendingSince = now
		}
		if now.Sub(d.pendingSince) >= d.duration {
			d.stable = state
			d.baselined = true
			d.pending = ""
		}
		return nil
	}

	if state == d.stable {
		d.pending = ""
		return nil
	}

	if d.pending != state {
		d.pending = state
		d.pendingSince = now
		return nil
	}

	if now.Sub(d.pendingSince) >= d.duration {
		tr := &Transition{Time: now, From: d.stable, To: state}
		d.stable = state
		d.pending = ""
		return tr
	}
	return nil
}

// IsBaselined returns whether a stable reading has been established.
func (d *Debouncer) IsBaselined() bool {
	return d.baselined
}

// Current returns the stable state, or "" before the baseline.
func (d *Debouncer) Current() State {
	return d.stable
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}
