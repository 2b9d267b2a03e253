package logic

import (
	"fmt"
	"strings"
	"time"
)

// SlotWidth is the grid spacing of the timeline.
const SlotWidth = 5 * time.Minute

// Rounding selects how an instant is mapped onto the slot grid.
type Rounding string

const (
	// RoundFloor maps an instant to the grid mark at or before it.
	RoundFloor Rounding = "floor"
	// RoundNearest reproduces the legacy reporter behaviour: minutes 0-2 of a
	// slot round down, minutes 3-4 round up. Seconds are ignored.
	RoundNearest Rounding = "nearest"
)

// ParseRounding validates a rounding mode name.
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(strings.ToLower(strings.TrimSpace(s))) {
	case RoundFloor, "":
		return RoundFloor, nil
	case RoundNearest:
		return RoundNearest, nil
	}
	return "", fmt.Errorf("unknown rounding %q (want floor or nearest)", s)
}

// Round maps t to its slot under the selected rounding mode.
func (r Rounding) Round(t time.Time) time.Time {
	if r == RoundNearest {
		return Nearest(t)
	}
	return Floor(t)
}

// Floor truncates t to the 5-minute grid in UTC.
func Floor(t time.Time) time.Time {
	return t.UTC().Truncate(SlotWidth)
}

// Nearest rounds t to the closest grid mark using whole minutes only,
// so 12:02:59 becomes 12:00 and 12:03:00 becomes 12:05.
func Nearest(t time.Time) time.Time {
	f := Floor(t)
	if t.UTC().Minute()%5 >= 3 {
		return f.Add(SlotWidth)
	}
	return f
}

// NextSlot returns the slot immediately after s.
func NextSlot(s time.Time) time.Time {
	return s.Add(SlotWidth)
}

// CeilSlot returns the grid mark at or after t.
func CeilSlot(t time.Time) time.Time {
	f := Floor(t)
	if f.Equal(t) {
		return f
	}
	return f.Add(SlotWidth)
}

// OnGrid reports whether t lies exactly on a grid mark.
func OnGrid(t time.Time) bool {
	return Floor(t).Equal(t)
}

// NextMark returns the first grid mark strictly after now.
func NextMark(now time.Time) time.Time {
	return NextSlot(Floor(now))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 instant. Timestamps without a zone
// offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatSlot renders a slot the way it is persisted and exposed over the API.
func FormatSlot(s time.Time) string {
	return s.UTC().Format(time.RFC3339)
}
