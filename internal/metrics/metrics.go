package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder groups the client-side collectors. A nil *Recorder is valid and
// records nothing, so components can take one unconditionally.
type Recorder struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inflight    prometheus.Gauge
	toggles     *prometheus.CounterVec
	searches    *prometheus.CounterVec
	savedSize   prometheus.Gauge
	cacheLookup *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hackplate",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests issued to the HackPlate API",
	}, []string{"code", "method"})
	r.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hackplate",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Round-trip latency of HackPlate API requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	r.inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hackplate",
		Subsystem: "api",
		Name:      "requests_in_flight",
		Help:      "Requests currently waiting for a response",
	})
	r.toggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hackplate",
		Subsystem: "saved",
		Name:      "toggles_total",
		Help:      "Saved-set toggles by outcome",
	}, []string{"outcome"})
	r.searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hackplate",
		Subsystem: "search",
		Name:      "executions_total",
		Help:      "Search executions by outcome",
	}, []string{"outcome"})
	r.savedSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hackplate",
		Subsystem: "saved",
		Name:      "events",
		Help:      "Events in the saved set after the last refresh",
	})
	r.cacheLookup = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hackplate",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Analytics cache lookups by result",
	}, []string{"result"})

	r.registry.MustRegister(
		r.requests, r.duration, r.inflight,
		r.toggles, r.searches, r.savedSize, r.cacheLookup,
	)
	return r
}

// Transport wraps base with request counters, latency and in-flight tracking.
func (r *Recorder) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if r == nil {
		return base
	}
	return promhttp.InstrumentRoundTripperInFlight(r.inflight,
		promhttp.InstrumentRoundTripperCounter(r.requests,
			promhttp.InstrumentRoundTripperDuration(r.duration, base),
		),
	)
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Toggle(outcome string) {
	if r == nil {
		return
	}
	r.toggles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Search(outcome string) {
	if r == nil {
		return
	}
	r.searches.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SavedSize(n int) {
	if r == nil {
		return
	}
	r.savedSize.Set(float64(n))
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookup.WithLabelValues(result).Inc()
}
