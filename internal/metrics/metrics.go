// Package metrics exposes outlet-monitor activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	reg *prometheus.Registry

	observations    *prometheus.CounterVec
	slotWrites      *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	persistFailures prometheus.Counter
	sweeps          *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	dropped         prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outlet_observations_total",
			Help: "Observations received by source and state.",
		}, []string{"source", "state"}),
		slotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outlet_slot_writes_total",
			Help: "Timeline slot writes by kind (INSERT, UPGRADE, BACKFILL).",
		}, []string{"kind"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outlet_save_duration_seconds",
			Help:    "Time taken to write the data file.",
			Buckets: prometheus.DefBuckets,
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outlet_persist_failures_total",
			Help: "Data file writes that failed.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outlet_sweeps_total",
			Help: "Sweep passes by result (off, skipped, error).",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outlet_sink_deliveries_total",
			Help: "Sink deliveries by sink and result.",
		}, []string{"sink", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outlet_sink_dropped_total",
			Help: "Change batches dropped because the delivery queue was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.observations,
		m.slotWrites,
		m.saveDuration,
		m.persistFailures,
		m.sweeps,
		m.deliveries,
		m.dropped,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Observed implements timeline.Recorder.
func (m *Metrics) Observed(source string, state logic.State) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(source, string(state)).Inc()
}

// Changed implements timeline.Recorder.
func (m *Metrics) Changed(changes []logic.Change) {
	if m == nil {
		return
	}
	for _, c := range changes {
		m.slotWrites.WithLabelValues(string(c.Kind)).Inc()
	}
}

// Saved implements timeline.Recorder.
func (m *Metrics) Saved(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.saveDuration.Observe(d.Seconds())
	if err != nil {
		m.persistFailures.Inc()
	}
}

// Swept implements sweep.Recorder.
func (m *Metrics) Swept(wrote bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.sweeps.WithLabelValues("error").Inc()
	case wrote:
		m.sweeps.WithLabelValues("off").Inc()
	default:
		m.sweeps.WithLabelValues("skipped").Inc()
	}
}

// Delivered implements fanout.Recorder.
func (m *Metrics) Delivered(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(sink, result).Inc()
}

// Dropped implements fanout.Recorder.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
