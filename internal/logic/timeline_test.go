package logic

import (
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func slotAt(n int) time.Time {
	return t0.Add(time.Duration(n) * SlotWidth)
}

func TestApplyFirstObservationNoBackfill(t *testing.T) {
	tl := NewTimeline()
	changes := tl.Apply(slotAt(0), StateOn)

	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Kind != ChangeInsert || changes[0].State != StateOn {
		t.Errorf("unexpected change: %+v", changes[0])
	}
	if tl.Len() != 1 {
		t.Errorf("Len: got %d, want 1", tl.Len())
	}
}

func TestApplyBackfill(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(slotAt(0), StateOn)
	changes := tl.Apply(slotAt(3), StateOn)

	want := []Entry{
		{slotAt(0), StateOn},
		{slotAt(1), StateOff},
		{slotAt(2), StateOff},
		{slotAt(3), StateOn},
	}
	got := tl.Entries()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Slot.Equal(want[i].Slot) || got[i].State != want[i].State {
			t.Errorf("entry %d: got %v=%s, want %v=%s", i, got[i].Slot, got[i].State, want[i].Slot, want[i].State)
		}
	}

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	kinds := []ChangeKind{ChangeBackfill, ChangeBackfill, ChangeInsert}
	for i, c := range changes {
		if c.Kind != kinds[i] {
			t.Errorf("change %d: kind %s, want %s", i, c.Kind, kinds[i])
		}
		if !c.Slot.Equal(slotAt(i + 1)) {
			t.Errorf("change %d: slot %v, want %v (changes must be oldest first)", i, c.Slot, slotAt(i+1))
		}
	}
}

func TestApplyIdempotent(t *testing.T) {
	once := NewTimeline()
	once.Apply(slotAt(0), StateOn)
	once.Apply(slotAt(4), StateOn)

	twice := NewTimeline()
	twice.Apply(slotAt(0), StateOn)
	twice.Apply(slotAt(4), StateOn)
	if changes := twice.Apply(slotAt(4), StateOn); len(changes) != 0 {
		t.Errorf("repeat Apply: expected no changes, got %d", len(changes))
	}

	if !once.Equal(twice) {
		t.Error("timelines differ after repeated observation")
	}
}

func TestApplyNoDowngrade(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(slotAt(0), StateOn)

	if changes := tl.Apply(slotAt(0), StateOff); len(changes) != 0 {
		t.Errorf("expected no changes, got %v", changes)
	}
	if s, _ := tl.Get(slotAt(0)); s != StateOn {
		t.Errorf("state: got %s, want ON", s)
	}
}

func TestApplyUpgrade(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(slotAt(0), StateOn)
	tl.Apply(slotAt(2), StateOff) // backfills slot 1

	changes := tl.Apply(slotAt(1), StateOn)
	if len(changes) != 1 || changes[0].Kind != ChangeUpgrade {
		t.Fatalf("expected one UPGRADE, got %v", changes)
	}
	if s, _ := tl.Get(slotAt(1)); s != StateOn {
		t.Errorf("slot 1: got %s, want ON", s)
	}
	if s, _ := tl.Get(slotAt(2)); s != StateOff {
		t.Errorf("slot 2: got %s, want OFF", s)
	}
}

func TestApplyOlderThanEarliest(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(slotAt(5), StateOn)
	changes := tl.Apply(slotAt(2), StateOn)

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	earliest, _ := tl.Earliest()
	if !earliest.Equal(slotAt(2)) {
		t.Errorf("Earliest: got %v, want %v", earliest, slotAt(2))
	}
	latest, _ := tl.Latest()
	if !latest.Slot.Equal(slotAt(5)) {
		t.Errorf("Latest: got %v, want %v", latest.Slot, slotAt(5))
	}
	if !tl.Contiguous() {
		t.Error("timeline not contiguous")
	}
}

func TestApplyNormalisesSlot(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(t0.Add(2*time.Minute+30*time.Second), StateOn)
	if _, ok := tl.Get(t0); !ok {
		t.Error("expected observation to land on the floored slot")
	}
}

func TestGapFreeUnderRandomObservations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tl := NewTimeline()
	for i := 0; i < 500; i++ {
		state := StateOff
		if rng.Intn(2) == 0 {
			state = StateOn
		}
		tl.Apply(slotAt(rng.Intn(400)-200), state)
		if !tl.Contiguous() {
			t.Fatalf("iteration %d: gap-free invariant violated", i)
		}
	}

	entries := tl.Entries()
	for i := 1; i < len(entries); i++ {
		if d := entries[i].Slot.Sub(entries[i-1].Slot); d != SlotWidth {
			t.Fatalf("entries %d-%d spaced %v, want %v", i-1, i, d, SlotWidth)
		}
	}
}

func TestPutAndRepair(t *testing.T) {
	tl := NewTimeline()
	tl.Put(slotAt(0), StateOn)
	tl.Put(slotAt(3), StateOn)
	tl.Put(slotAt(3), StateOff) // ON wins

	if tl.Contiguous() {
		t.Error("expected gap before repair")
	}
	added := tl.Repair()
	if len(added) != 2 {
		t.Errorf("Repair: added %d slots, want 2", len(added))
	}
	if !tl.Contiguous() {
		t.Error("expected contiguous after repair")
	}
	if s, _ := tl.Get(slotAt(3)); s != StateOn {
		t.Errorf("slot 3: got %s, want ON", s)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(slotAt(0), StateOff)
	c := tl.Clone()
	tl.Apply(slotAt(0), StateOn)
	tl.Apply(slotAt(1), StateOn)

	if s, _ := c.Get(slotAt(0)); s != StateOff {
		t.Errorf("clone mutated: got %s", s)
	}
	if c.Len() != 1 {
		t.Errorf("clone Len: got %d, want 1", c.Len())
	}
}

func TestEmptyTimeline(t *testing.T) {
	tl := NewTimeline()
	if _, ok := tl.Latest(); ok {
		t.Error("Latest on empty timeline should report false")
	}
	if _, ok := tl.Earliest(); ok {
		t.Error("Earliest on empty timeline should report false")
	}
	if len(tl.Entries()) != 0 {
		t.Error("Entries on empty timeline should be empty")
	}
	if !tl.Contiguous() {
		t.Error("empty timeline is trivially contiguous")
	}
}

func TestStateBit(t *testing.T) {
	if StateOn.Bit() != 1 || StateOff.Bit() != 0 {
		t.Error("unexpected Bit values")
	}
	for _, v := range []int{0, 1} {
		s, err := StateFromBit(v)
		if err != nil || s.Bit() != v {
			t.Errorf("StateFromBit(%d): got %s, %v", v, s, err)
		}
	}
	if _, err := StateFromBit(2); err == nil {
		t.Error("expected error for 2")
	}
}
