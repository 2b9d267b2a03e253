package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/status"
	"github.com/sweeney/outlet-monitor/internal/timeline"
)

// Source is the observation source name for HTTP reports.
const Source = "http"

var errBadTimestamp = errors.New("invalid timestamp")

// ReportResponse is the body returned by POST /power_status.
type ReportResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Slot      string `json:"slot,omitempty"`
	Changes   int    `json:"changes"`
	Persisted bool   `json:"persisted"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Points     int    `json:"points"`
	Latest     string `json:"latest"`
	LastUpdate string `json:"last_update"`
	Status     string `json:"status"`
}

// DataPoint is one row of GET /data.
type DataPoint struct {
	Slot  string `json:"slot"`
	State int    `json:"state"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// reportTime returns the instant a report refers to: the timestamp field if
// given, otherwise now.
func reportTime(r *http.Request, now time.Time) (time.Time, error) {
	v := r.FormValue("timestamp")
	if v == "" {
		return now, nil
	}
	t, err := logic.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, errBadTimestamp
	}
	return t, nil
}

func (s *Server) handlePowerStatus(w http.ResponseWriter, r *http.Request) {
	at, err := reportTime(r, s.opts.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ReportResponse{Status: "error", Message: err.Error() + ": " + r.FormValue("timestamp")})
		return
	}
	client := r.FormValue("client_ip")
	if client == "" {
		client = r.RemoteAddr
	}

	res, err := s.store.Ingest(logic.Observation{At: at, State: logic.StateOn, Source: Source})
	resp := ReportResponse{
		Status:    "success",
		Slot:      logic.FormatSlot(res.Slot),
		Changes:   len(res.Changes),
		Persisted: res.Persisted,
	}
	switch {
	case errors.Is(err, timeline.ErrPersist):
		// The in-memory write stands; the next save retries.
		s.log.Warn("report recorded but not saved", zap.String("client", client), zap.Error(err))
	case err != nil:
		s.log.Error("report failed", zap.String("client", client), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ReportResponse{Status: "error", Message: err.Error()})
		return
	default:
		s.log.Info("power report",
			zap.String("client", client),
			zap.String("slot", resp.Slot),
			zap.Int("changes", resp.Changes),
			zap.String("request_id", RequestID(r.Context())))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/power_graph", http.StatusFound)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Now()
	resp := StatusResponse{
		Points:     s.store.Len(),
		Latest:     "none",
		LastUpdate: "never",
		Status:     string(s.store.Status(now, s.opts.Grace).Status),
	}
	if e, ok := s.store.Latest(); ok {
		resp.Latest = logic.FormatSlot(e.Slot)
	}
	if t := s.store.LastSave(); !t.IsZero() {
		resp.LastUpdate = t.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatusText(w http.ResponseWriter, r *http.Request) {
	v := s.store.Status(s.opts.Now(), s.opts.Grace)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderStatusText(w, v, s.opts.DisplayTZ); err != nil {
		s.log.Error("render status text", zap.Error(err))
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	entries := s.store.Entries()
	v := s.store.Status(s.opts.Now(), s.opts.Grace)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderGraphPage(w, entries, v, s.opts.DisplayTZ); err != nil {
		s.log.Error("render graph page", zap.Error(err))
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	if err := RenderChart(w, s.store.Entries(), s.opts.DisplayTZ); err != nil {
		s.log.Error("render chart", zap.Error(err))
	}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	entries := s.store.Entries()
	out := make([]DataPoint, len(entries))
	for i, e := range entries {
		out[i] = DataPoint{Slot: logic.FormatSlot(e.Slot), State: e.State.Bit()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleXLSX(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="power_data.xlsx"`)
	if err := WriteXLSX(w, s.store.Entries(), s.opts.DisplayTZ); err != nil {
		s.log.Error("write xlsx", zap.Error(err))
	}
}

func (s *Server) handleIndexJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK\n"))
}
