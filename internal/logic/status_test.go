package logic

import (
	"testing"
	"time"
)

func TestInferEmpty(t *testing.T) {
	v := Infer(NewTimeline(), t0, time.Minute)
	if v.Status != StatusUnknown {
		t.Errorf("Status: got %s, want UNKNOWN", v.Status)
	}
	if v.HasLatest {
		t.Error("expected HasLatest=false")
	}
}

func TestInferGraceWindow(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(t0, StateOn)
	grace := 60 * time.Second

	v := Infer(tl, t0.Add(5*time.Minute+30*time.Second), grace)
	if v.Status != StatusOn {
		t.Errorf("within grace: got %s, want ON", v.Status)
	}
	if !v.ExpectedNext.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("ExpectedNext: got %v", v.ExpectedNext)
	}

	v = Infer(tl, t0.Add(5*time.Minute+61*time.Second), grace)
	if v.Status != StatusOff {
		t.Errorf("past grace: got %s, want OFF", v.Status)
	}

	// Exactly at the deadline is still within grace.
	v = Infer(tl, t0.Add(6*time.Minute), grace)
	if v.Status != StatusOn {
		t.Errorf("at deadline: got %s, want ON", v.Status)
	}
}

func TestInferLatestOff(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(t0, StateOff)

	v := Infer(tl, t0.Add(10*time.Second), time.Minute)
	if v.Status != StatusOff {
		t.Errorf("got %s, want OFF", v.Status)
	}
	if !v.ExpectedNext.Equal(t0) {
		t.Errorf("ExpectedNext for OFF slot: got %v, want %v", v.ExpectedNext, t0)
	}
}

func TestInferLatestOffGridUsesCeil(t *testing.T) {
	latest := Entry{Slot: t0.Add(time.Minute), State: StateOn}
	v := InferLatest(latest, true, t0.Add(5*time.Minute+30*time.Second), time.Minute)
	if !v.ExpectedNext.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("ExpectedNext: got %v, want %v", v.ExpectedNext, t0.Add(5*time.Minute))
	}
	if v.Status != StatusOn {
		t.Errorf("Status: got %s, want ON", v.Status)
	}
}

func TestVerdictStale(t *testing.T) {
	tl := NewTimeline()
	tl.Apply(t0, StateOn)
	v := Infer(tl, t0, time.Minute)
	if v.Stale(t0.Add(6 * time.Minute)) {
		t.Error("should not be stale at deadline")
	}
	if !v.Stale(t0.Add(6*time.Minute + time.Second)) {
		t.Error("should be stale after deadline")
	}
	if (Verdict{}).Stale(t0) {
		t.Error("empty verdict is never stale")
	}
}
