package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/timeline"
)

// Source is the observation source name for broker reports.
const Source = "mqtt"

// Report is the optional JSON body of a power report. An empty payload means
// "power is on now".
type Report struct {
	Timestamp string `json:"timestamp"`
	ClientIP  string `json:"client_ip,omitempty"`
}

// ParseReport converts a report payload into an ON observation. A missing
// timestamp defaults to received.
func ParseReport(payload []byte, received time.Time) (logic.Observation, Report, error) {
	obs := logic.Observation{At: received, State: logic.StateOn, Source: Source}

	var r Report
	if len(bytes.TrimSpace(payload)) == 0 {
		return obs, r, nil
	}
	if err := json.Unmarshal(payload, &r); err != nil {
		return logic.Observation{}, r, fmt.Errorf("decode report: %w", err)
	}
	if r.Timestamp != "" {
		ts, err := logic.ParseTimestamp(r.Timestamp)
		if err != nil {
			return logic.Observation{}, r, err
		}
		obs.At = ts
	}
	return obs, r, nil
}

// Ingester accepts observations.
type Ingester interface {
	Ingest(obs logic.Observation) (timeline.Result, error)
}

// ReportHandler returns a message handler that ingests each report.
func ReportHandler(in Ingester, log *zap.Logger) MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(topic string, payload []byte, received time.Time) {
		obs, r, err := ParseReport(payload, received)
		if err != nil {
			log.Warn("bad report", zap.String("topic", topic), zap.Error(err))
			return
		}
		res, err := in.Ingest(obs)
		if err != nil {
			log.Error("report ingest failed", zap.Time("slot", res.Slot), zap.Error(err))
			return
		}
		log.Debug("report", zap.Time("slot", res.Slot), zap.Int("changes", len(res.Changes)), zap.String("client_ip", r.ClientIP))
	}
}
