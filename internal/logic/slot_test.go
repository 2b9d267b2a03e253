package logic

import (
	"testing"
	"time"
)

func TestFloor(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 1, 1, 12, 2, 59, 999, time.UTC), time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 1, 1, 12, 4, 59, 0, time.UTC), time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC), time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)},
		{time.Date(2026, 1, 1, 23, 59, 59, 0, time.UTC), time.Date(2026, 1, 1, 23, 55, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := Floor(tt.in)
		if !got.Equal(tt.want) {
			t.Errorf("Floor(%v): got %v, want %v", tt.in, got, tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("Floor(%v): location %v, want UTC", tt.in, got.Location())
		}
	}
}

func TestFloorConvertsToUTC(t *testing.T) {
	helsinki := time.FixedZone("EET", 2*60*60)
	in := time.Date(2026, 1, 1, 14, 7, 30, 0, helsinki)
	want := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	if got := Floor(in); !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("Floor: got %v, want %v", got, want)
	}
}

func TestNearest(t *testing.T) {
	tests := []struct {
		min, sec int
		wantHour int
		wantMin  int
	}{
		{0, 0, 12, 0},
		{2, 59, 12, 0},
		{3, 0, 12, 5},
		{4, 30, 12, 5},
		{57, 0, 12, 55},
		{58, 0, 13, 0},
	}
	for _, tt := range tests {
		in := time.Date(2026, 1, 1, 12, tt.min, tt.sec, 0, time.UTC)
		want := time.Date(2026, 1, 1, tt.wantHour, tt.wantMin, 0, 0, time.UTC)
		if got := Nearest(in); !got.Equal(want) {
			t.Errorf("Nearest(%v): got %v, want %v", in, got, want)
		}
	}
}

func TestRoundingRound(t *testing.T) {
	in := time.Date(2026, 1, 1, 12, 3, 0, 0, time.UTC)
	if got := RoundFloor.Round(in); !got.Equal(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("floor: got %v", got)
	}
	if got := RoundNearest.Round(in); !got.Equal(time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)) {
		t.Errorf("nearest: got %v", got)
	}
}

func TestParseRounding(t *testing.T) {
	for in, want := range map[string]Rounding{"": RoundFloor, "floor": RoundFloor, "NEAREST": RoundNearest, " nearest ": RoundNearest} {
		got, err := ParseRounding(in)
		if err != nil {
			t.Errorf("ParseRounding(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("ParseRounding(%q): got %q, want %q", in, got, want)
		}
	}
	if _, err := ParseRounding("half-up"); err == nil {
		t.Error("expected error for unknown rounding")
	}
}

func TestCeilSlot(t *testing.T) {
	on := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	if got := CeilSlot(on); !got.Equal(on) {
		t.Errorf("CeilSlot on grid: got %v, want %v", got, on)
	}
	off := time.Date(2026, 1, 1, 12, 5, 1, 0, time.UTC)
	if got := CeilSlot(off); !got.Equal(time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)) {
		t.Errorf("CeilSlot off grid: got %v", got)
	}
}

func TestNextMark(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	if got := NextMark(now); !got.Equal(time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)) {
		t.Errorf("NextMark on grid: got %v", got)
	}
	now = time.Date(2026, 1, 1, 12, 7, 12, 0, time.UTC)
	if got := NextMark(now); !got.Equal(time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)) {
		t.Errorf("NextMark off grid: got %v", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 1, 1, 12, 3, 4, 0, time.UTC)
	inputs := []string{
		"2026-01-01T12:03:04Z",
		"2026-01-01T14:03:04+02:00",
		"2026-01-01T12:03:04",
		"2026-01-01 12:03:04",
		" 2026-01-01T12:03:04Z ",
	}
	for _, in := range inputs {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): unexpected error %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q): got %v, want %v", in, got, want)
		}
	}

	// Python isoformat with microseconds
	got, err := ParseTimestamp("2026-01-01T12:03:04.123456")
	if err != nil {
		t.Fatalf("microseconds: %v", err)
	}
	if got.Nanosecond() != 123456000 {
		t.Errorf("microseconds: got %d ns", got.Nanosecond())
	}

	for _, bad := range []string{"", "yesterday", "2026-13-01T00:00:00Z", "12:00"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Errorf("ParseTimestamp(%q): expected error", bad)
		}
	}
}

func TestFormatSlot(t *testing.T) {
	s := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	if got := FormatSlot(s); got != "2026-01-01T12:05:00Z" {
		t.Errorf("FormatSlot: got %q", got)
	}
}
