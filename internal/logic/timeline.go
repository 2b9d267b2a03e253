package logic

import (
	"slices"
	"time"
)

const slotSeconds = int64(SlotWidth / time.Second)

// Timeline maps grid slots to states.
//
// Once non-empty, the slots form a contiguous run from Earliest to Latest at
// SlotWidth spacing. Apply maintains that invariant; Put does not, and callers
// that build a timeline with Put must call Repair before using it.
//
// A Timeline is not safe for concurrent use.
type Timeline struct {
	slots map[int64]State // keyed by Unix seconds of the slot
	min   int64
	max   int64
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{slots: make(map[int64]State)}
}

// Len returns the number of slots.
func (t *Timeline) Len() int {
	return len(t.slots)
}

// Get returns the state recorded for slot, if any.
func (t *Timeline) Get(slot time.Time) (State, bool) {
	s, ok := t.slots[Floor(slot).Unix()]
	return s, ok
}

// Latest returns the newest slot.
func (t *Timeline) Latest() (Entry, bool) {
	if len(t.slots) == 0 {
		return Entry{}, false
	}
	return Entry{Slot: slotTime(t.max), State: t.slots[t.max]}, true
}

// Earliest returns the oldest slot.
func (t *Timeline) Earliest() (time.Time, bool) {
	if len(t.slots) == 0 {
		return time.Time{}, false
	}
	return slotTime(t.min), true
}

// Entries returns all slots in ascending order.
func (t *Timeline) Entries() []Entry {
	keys := make([]int64, 0, len(t.slots))
	for k := range t.slots {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Slot: slotTime(k), State: t.slots[k]}
	}
	return out
}

// Clone returns a deep copy.
func (t *Timeline) Clone() *Timeline {
	c := &Timeline{slots: make(map[int64]State, len(t.slots)), min: t.min, max: t.max}
	for k, v := range t.slots {
		c.slots[k] = v
	}
	return c
}

// Equal reports whether both timelines hold the same slots and states.
func (t *Timeline) Equal(o *Timeline) bool {
	if len(t.slots) != len(o.slots) {
		return false
	}
	for k, v := range t.slots {
		if ov, ok := o.slots[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Put records state for slot without backfilling. When the slot already
// exists, ON wins over OFF. Used when rebuilding a timeline from storage.
func (t *Timeline) Put(slot time.Time, state State) {
	k := Floor(slot).Unix()
	if cur, ok := t.slots[k]; ok && cur == StateOn {
		return
	}
	t.insert(k, state)
}

// Repair fills every missing slot between Earliest and Latest with OFF and
// returns the slots it added.
func (t *Timeline) Repair() []Change {
	if len(t.slots) < 2 {
		return nil
	}
	var changes []Change
	for k := t.min + slotSeconds; k < t.max; k += slotSeconds {
		if _, ok := t.slots[k]; ok {
			continue
		}
		t.slots[k] = StateOff
		changes = append(changes, Change{Slot: slotTime(k), State: StateOff, Kind: ChangeBackfill})
	}
	return changes
}

// Contiguous reports whether the gap-free invariant holds.
func (t *Timeline) Contiguous() bool {
	if len(t.slots) == 0 {
		return true
	}
	return int64(len(t.slots)) == (t.max-t.min)/slotSeconds+1
}

// Apply records state for slot and backfills any slots skipped since the
// previous boundary with OFF. It returns the writes performed, oldest first.
//
// An existing OFF slot is upgraded by ON; an existing ON slot is never
// downgraded. Applying the same observation twice writes nothing the second
// time. A slot older than Earliest becomes the new Earliest and the run up to
// the old Earliest is filled with OFF.
func (t *Timeline) Apply(slot time.Time, state State) []Change {
	k := Floor(slot).Unix()
	s := slotTime(k)

	if cur, ok := t.slots[k]; ok {
		if cur == StateOff && state == StateOn {
			t.slots[k] = StateOn
			return []Change{{Slot: s, State: StateOn, Kind: ChangeUpgrade}}
		}
		return nil
	}

	if len(t.slots) == 0 {
		t.insert(k, state)
		return []Change{{Slot: s, State: state, Kind: ChangeInsert}}
	}

	var changes []Change
	switch {
	case k > t.max:
		for b := k - slotSeconds; b > t.max; b -= slotSeconds {
			t.slots[b] = StateOff
			changes = append(changes, Change{Slot: slotTime(b), State: StateOff, Kind: ChangeBackfill})
		}
	case k < t.min:
		for b := k + slotSeconds; b < t.min; b += slotSeconds {
			t.slots[b] = StateOff
			changes = append(changes, Change{Slot: slotTime(b), State: StateOff, Kind: ChangeBackfill})
		}
	}
	t.insert(k, state)
	changes = append(changes, Change{Slot: s, State: state, Kind: ChangeInsert})

	slices.SortFunc(changes, func(a, b Change) int {
		return a.Slot.Compare(b.Slot)
	})
	return changes
}

func (t *Timeline) insert(k int64, state State) {
	if len(t.slots) == 0 {
		t.min, t.max = k, k
	}
	if k < t.min {
		t.min = k
	}
	if k > t.max {
		t.max = k
	}
	t.slots[k] = state
}

func slotTime(k int64) time.Time {
	return time.Unix(k, 0).UTC()
}
