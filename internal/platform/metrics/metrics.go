package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the overlay studio
// processes. The server and the studio share one set of names; each process
// only moves the series it owns.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	overlaysCreatedTotal prometheus.Counter
	overlayUpdatesTotal  prometheus.Counter
	overlaysDeletedTotal prometheus.Counter
	streamStartsTotal    prometheus.Counter
	streamStopsTotal     prometheus.Counter
	activeStreams        prometheus.Gauge
	persistFailures      *prometheus.CounterVec
	playbackErrorsTotal  prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	overlaysCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_created_total",
		Help: "Total number of overlays persisted",
	})
	overlayUpdatesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_updates_total",
		Help: "Total number of overlay patches applied",
	})
	overlaysDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_deleted_total",
		Help: "Total number of overlays deleted",
	})
	streamStartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_stream_starts_total",
		Help: "Total number of transcoder starts",
	})
	streamStopsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_stream_stops_total",
		Help: "Total number of transcoder stops",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlay_active_streams",
		Help: "Number of running transcoder processes",
	})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_persist_failures_total",
		Help: "Store calls issued by the compositor that failed, by operation",
	}, []string{"op"})
	playbackErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_playback_errors_total",
		Help: "Playback sessions that ended in the error state",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		overlaysCreatedTotal,
		overlayUpdatesTotal,
		overlaysDeletedTotal,
		streamStartsTotal,
		streamStopsTotal,
		activeStreams,
		persistFailures,
		playbackErrorsTotal,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		overlaysCreatedTotal: overlaysCreatedTotal,
		overlayUpdatesTotal:  overlayUpdatesTotal,
		overlaysDeletedTotal: overlaysDeletedTotal,
		streamStartsTotal:    streamStartsTotal,
		streamStopsTotal:     streamStopsTotal,
		activeStreams:        activeStreams,
		persistFailures:      persistFailures,
		playbackErrorsTotal:  playbackErrorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

func (m *Metrics) IncOverlaysCreated() {
	m.overlaysCreatedTotal.Inc()
}

func (m *Metrics) IncOverlayUpdates() {
	m.overlayUpdatesTotal.Inc()
}

func (m *Metrics) IncOverlaysDeleted() {
	m.overlaysDeletedTotal.Inc()
}

func (m *Metrics) IncStreamStarts() {
	m.streamStartsTotal.Inc()
}

func (m *Metrics) IncStreamStops() {
	m.streamStopsTotal.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// IncPersistFailures counts a failed store call; op is "list", "create",
// "update" or "delete".
func (m *Metrics) IncPersistFailures(op string) {
	m.persistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) IncPlaybackErrors() {
	m.playbackErrorsTotal.Inc()
}

// Registry exposes the private registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
