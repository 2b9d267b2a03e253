// Package logic contains pure business logic for the outlet power timeline.
// This package has NO external dependencies (no files, MQTT, HTTP, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// State is the recorded power state of a single slot.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Bit returns the persisted form of the state: 1 for ON, 0 for OFF.
func (s State) Bit() int {
	if s == StateOn {
		return 1
	}
	return 0
}

// StateFromBit converts a persisted 0/1 value into a State.
func StateFromBit(v int) (State, error) {
	switch v {
	case 0:
		return StateOff, nil
	case 1:
		return StateOn, nil
	}
	return "", fmt.Errorf("invalid state value %d (want 0 or 1)", v)
}

// Status is the derived live status of the outlet.
type Status string

const (
	StatusOn      Status = "ON"
	StatusOff     Status = "OFF"
	StatusUnknown Status = "UNKNOWN"
)

// Entry is one slot of the timeline.
type Entry struct {
	Slot  time.Time
	State State
}

// ChangeKind says how a slot came to be written.
type ChangeKind string

const (
	ChangeInsert   ChangeKind = "INSERT"
	ChangeUpgrade  ChangeKind = "UPGRADE"
	ChangeBackfill ChangeKind = "BACKFILL"
)

// Change is a single slot write produced by Timeline.Apply.
type Change struct {
	Slot  time.Time
	State State
	Kind  ChangeKind
}

// Observation is an incoming report that the device was in State at instant At.
// Observations are never persisted; only their effect on the timeline is.
type Observation struct {
	At     time.Time
	State  State
	Source string // e.g. "http", "mqtt", "gpio", "sweep"
}
