// Package web serves the outlet-monitor HTTP API: power reports in, status
// pages, chart, data export and daemon status out.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/metrics"
	"github.com/sweeney/outlet-monitor/internal/status"
	"github.com/sweeney/outlet-monitor/internal/timeline"
)

// Timeline is the part of timeline.Store the handlers use.
type Timeline interface {
	Ingest(obs logic.Observation) (timeline.Result, error)
	Entries() []logic.Entry
	Len() int
	Latest() (logic.Entry, bool)
	LastSave() time.Time
	Status(now time.Time, grace time.Duration) logic.Verdict
}

// Options configures a Server.
type Options struct {
	Addr      string
	Grace     time.Duration
	DisplayTZ *time.Location
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the HTTP API.
type Server struct {
	httpServer *http.Server
	store      Timeline
	tracker    *status.Tracker
	opts       Options
	log        *zap.Logger
	router     *mux.Router
}

// New creates a Server reading and writing through store. tracker may be nil,
// in which case /index.json is not served.
func New(store Timeline, tracker *status.Tracker, o Options) *Server {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.DisplayTZ == nil {
		o.DisplayTZ = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	s := &Server{
		store:   store,
		tracker: tracker,
		opts:    o,
		log:     o.Log.Named("http"),
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/power_status", s.handlePowerStatus).Methods(http.MethodPost)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/power_graph", s.handleGraph).Methods(http.MethodGet)
	r.HandleFunc("/chart.svg", s.handleChart).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status_text", s.handleStatusText).Methods(http.MethodGet)
	r.HandleFunc("/data", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/data.xlsx", s.handleXLSX).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if tracker != nil {
		r.HandleFunc("/index.json", s.handleIndexJSON).Methods(http.MethodGet)
	}
	if o.Metrics != nil {
		r.Handle("/metrics", o.Metrics.Handler()).Methods(http.MethodGet)
	}
	s.router = r

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(nil, h, s.accessLog)
	h = requestID(h)
	h = handlers.ProxyHeaders(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}), handlers.PrintRecoveryStack(false))(h)

	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
