package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Outlet        OutletJSON `json:"outlet"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// OutletJSON describes the inferred outlet state.
type OutletJSON struct {
	Status       string `json:"status"`
	LatestSlot   string `json:"latest_slot,omitempty"`
	LatestState  string `json:"latest_state,omitempty"`
	ExpectedNext string `json:"expected_next,omitempty"`
	Slots        int    `json:"slots"`
	LastSave     string `json:"last_save,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of Counts.
type CountsJSON struct {
	Reports      map[string]int `json:"reports"`
	Inserts      int            `json:"inserts"`
	Upgrades     int            `json:"upgrades"`
	Backfills    int            `json:"backfills"`
	SaveFailures int            `json:"save_failures"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Rounding    string   `json:"rounding"`
	GraceMs     int64    `json:"grace_ms"`
	ExtraWaitMs int64    `json:"extra_wait_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	DataFile    string   `json:"data_file"`
	Broker      string   `json:"broker,omitempty"`
	HTTPAddr    string   `json:"http_addr"`
	DisplayTZ   string   `json:"display_tz"`
	Sinks       []string `json:"sinks"`
}

func buildInner(snap Snapshot) StatusInner {
	outlet := OutletJSON{
		Status: string(snap.Verdict.Status),
		Slots:  snap.Slots,
	}
	if outlet.Status == "" {
		outlet.Status = string(logic.StatusUnknown)
	}
	if snap.Verdict.HasLatest {
		outlet.LatestSlot = logic.FormatSlot(snap.Verdict.Latest.Slot)
		outlet.LatestState = string(snap.Verdict.Latest.State)
		outlet.ExpectedNext = logic.FormatSlot(snap.Verdict.ExpectedNext)
	}
	if !snap.LastSave.IsZero() {
		outlet.LastSave = snap.LastSave.UTC().Format(time.RFC3339)
	}

	reports := snap.Counts.Reports
	if reports == nil {
		reports = map[string]int{}
	}
	sinks := snap.Config.Sinks
	if sinks == nil {
		sinks = []string{}
	}

	return StatusInner{
		Outlet:        outlet,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Reports:      reports,
			Inserts:      snap.Counts.Inserts,
			Upgrades:     snap.Counts.Upgrades,
			Backfills:    snap.Counts.Backfills,
			SaveFailures: snap.Counts.SaveFailures,
		},
		Config: ConfigJSON{
			Rounding:    snap.Config.Rounding,
			GraceMs:     snap.Config.GraceMs,
			ExtraWaitMs: snap.Config.ExtraWaitMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			DataFile:    snap.Config.DataFile,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			DisplayTZ:   snap.Config.DisplayTZ,
			Sinks:       sinks,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
