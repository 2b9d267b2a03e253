// Package mqtt publishes timeline changes and lifecycle events to MQTT and
// accepts power reports from the broker, with an abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/outlet-monitor/internal/fanout"
	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Default topics.
const (
	TopicTimeline = "power/outlet/timeline"
	TopicSystem   = "power/outlet/system"
	TopicReport   = "power/outlet/report"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishChange sends a batch of slot writes.
	// Returns error if publishing fails (should not crash the process).
	PublishChange(ev fanout.Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the message published for each batch of slot writes.
type Payload struct {
	Timeline TimelinePayload `json:"timeline"`
}

// TimelinePayload describes the writes and the newest slot after them.
type TimelinePayload struct {
	Timestamp string     `json:"timestamp"`
	Changes   []SlotJSON `json:"changes"`
	Latest    SlotJSON   `json:"latest"`
}

// SlotJSON is one slot write.
type SlotJSON struct {
	Slot  string `json:"slot"`
	State string `json:"state"`
	Kind  string `json:"kind,omitempty"`
}

// FormatPayload creates the JSON payload for a batch of slot writes.
func FormatPayload(ev fanout.Event) ([]byte, error) {
	changes := make([]SlotJSON, len(ev.Changes))
	for i, c := range ev.Changes {
		changes[i] = SlotJSON{Slot: logic.FormatSlot(c.Slot), State: string(c.State), Kind: string(c.Kind)}
	}
	payload := Payload{
		Timeline: TimelinePayload{
			Timestamp: ev.At.UTC().Format(time.RFC3339),
			Changes:   changes,
			Latest:    SlotJSON{Slot: logic.FormatSlot(ev.Latest.Slot), State: string(ev.Latest.State)},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// Sink adapts a Publisher to fanout.Sink.
type Sink struct {
	P Publisher
}

// Name implements fanout.Sink.
func (s Sink) Name() string { return "mqtt" }

// Deliver implements fanout.Sink.
func (s Sink) Deliver(_ context.Context, ev fanout.Event) error {
	return s.P.PublishChange(ev)
}
