package logic

import "time"

// Verdict is the outcome of status inference.
type Verdict struct {
	Status Status
	// Latest is the newest slot; zero when HasLatest is false.
	Latest    Entry
	HasLatest bool
	// ExpectedNext is when the next report is due.
	ExpectedNext time.Time
	// Deadline is ExpectedNext plus the grace window. After it the last
	// recorded state is considered stale.
	Deadline time.Time
}

// Stale reports whether now is past the grace deadline.
func (v Verdict) Stale(now time.Time) bool {
	return v.HasLatest && now.After(v.Deadline)
}

// Infer derives the live status of tl at now.
func Infer(tl *Timeline, now time.Time, grace time.Duration) Verdict {
	latest, ok := tl.Latest()
	return InferLatest(latest, ok, now, grace)
}

// InferLatest derives the live status from the newest slot alone.
//
// If the newest slot is on-grid and ON, the next report is due one slot
// later; otherwise it is due at the grid mark at or after the slot. Past the
// due time plus grace the outlet is OFF regardless of what was recorded.
func InferLatest(latest Entry, ok bool, now time.Time, grace time.Duration) Verdict {
	if !ok {
		return Verdict{Status: StatusUnknown}
	}

	expected := CeilSlot(latest.Slot)
	if OnGrid(latest.Slot) && latest.State == StateOn {
		expected = NextSlot(latest.Slot)
	}

	v := Verdict{
		Latest:       latest,
		HasLatest:    true,
		ExpectedNext: expected,
		Deadline:     expected.Add(grace),
	}

	switch {
	case now.After(v.Deadline):
		v.Status = StatusOff
	case latest.State == StateOn:
		v.Status = StatusOn
	default:
		v.Status = StatusOff
	}
	return v
}
