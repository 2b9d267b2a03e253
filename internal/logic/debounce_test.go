package logic

import (
	"testing"
	"time"
)

func setupBaselinedDebouncer(t *testing.T, on bool) *Debouncer {
	t.Helper()
	d := NewDebouncer(250 * time.Millisecond)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.Process(on, now)
	d.Process(on, now.Add(250*time.Millisecond))
	if !d.IsBaselined() {
		t.Fatal("failed to establish baseline")
	}
	return d
}

func TestDebouncerBaseline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(250 * time.Millisecond)

	if tr := d.Process(true, now); tr != nil {
		t.Errorf("expected no transition during baseline, got %+v", tr)
	}
	if d.IsBaselined() {
		t.Error("should not be baselined after first sample")
	}
	if tr := d.Process(true, now.Add(200*time.Millisecond)); tr != nil {
		t.Errorf("expected no transition during baseline, got %+v", tr)
	}
	if tr := d.Process(true, now.Add(250*time.Millisecond)); tr != nil {
		t.Errorf("expected no transition at baseline, got %+v", tr)
	}
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce period")
	}
	if d.Current() != StateOn {
		t.Errorf("Current: got %s, want ON", d.Current())
	}
}

func TestDebouncerBaselineResetOnChange(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(250 * time.Millisecond)

	d.Process(true, now)
	d.Process(false, now.Add(100*time.Millisecond))
	d.Process(false, now.Add(250*time.Millisecond))
	if d.IsBaselined() {
		t.Error("baseline timer should restart on change")
	}
	d.Process(false, now.Add(350*time.Millisecond))
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce from state change")
	}
	if d.Current() != StateOff {
		t.Errorf("Current: got %s, want OFF", d.Current())
	}
}

func TestDebouncerTransition(t *testing.T) {
	d := setupBaselinedDebouncer(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	if tr := d.Process(true, now); tr != nil {
		t.Errorf("expected no transition before debounce, got %+v", tr)
	}
	tr := d.Process(true, now.Add(250*time.Millisecond))
	if tr == nil {
		t.Fatal("expected transition after debounce")
	}
	if tr.From != StateOff || tr.To != StateOn {
		t.Errorf("transition: got %s->%s, want OFF->ON", tr.From, tr.To)
	}
	if !tr.Time.Equal(now.Add(250 * time.Millisecond)) {
		t.Errorf("unexpected timestamp: %v", tr.Time)
	}
}

func TestDebouncerBounce(t *testing.T) {
	d := setupBaselinedDebouncer(t, true)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	d.Process(false, now)
	d.Process(true, now.Add(100*time.Millisecond))
	if tr := d.Process(true, now.Add(300*time.Millisecond)); tr != nil {
		t.Errorf("expected no transition after bounce, got %+v", tr)
	}
	if d.Current() != StateOn {
		t.Errorf("Current after bounce: got %s, want ON", d.Current())
	}
}

func TestDebouncerCurrentBeforeBaseline(t *testing.T) {
	d := NewDebouncer(250 * time.Millisecond)
	if d.Current() != "" {
		t.Errorf("expected empty state before baseline, got %s", d.Current())
	}
}
