// Package metrics exposes calibrator activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/thermo-calibrator/internal/calibrator"
)

const namespace = "thermo_calibrator"

// Metrics records engine outcomes and HTTP traffic. It implements
// calibrator.Observer. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	commands     *prometheus.CounterVec
	dataQuality  *prometheus.CounterVec
	calibration  *prometheus.GaugeVec
	average      *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates Metrics registered on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Device events processed, by device kind and outcome.",
		}, []string{"kind", "outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Calibration commands issued, by location.",
		}, []string{"location"}),
		dataQuality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_quality_warnings_total",
			Help:      "Sensor payloads that could not be used, by location.",
		}, []string{"location"}),
		calibration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_celsius",
			Help:      "Last calibration offset applied or reported, by location.",
		}, []string{"location"}),
		average: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_average_celsius",
			Help:      "Last weighted sensor average, by location.",
		}, []string{"location"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.events,
		m.commands,
		m.dataQuality,
		m.calibration,
		m.average,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Observe counts one processed event.
func (m *Metrics) Observe(res calibrator.Result) {
	if m == nil {
		return
	}
	kind := string(res.Kind)
	if kind == "" {
		kind = "unknown"
	}
	m.events.WithLabelValues(kind, string(res.Outcome)).Inc()
	if res.Location == "" || res.Outcome.Dropped() {
		return
	}
	if res.Command != nil {
		m.commands.WithLabelValues(res.Location).Inc()
	}
	if cal := res.State.LastCalibration; cal != nil {
		m.calibration.WithLabelValues(res.Location).Set(*cal)
	}
	if res.Aggregate != nil && res.Aggregate.ValidCount > 0 {
		m.average.WithLabelValues(res.Location).Set(res.Aggregate.Average)
	}
}

// DataQuality counts one unusable sensor payload.
func (m *Metrics) DataQuality(identifier, location, problem string) {
	if m == nil {
		return
	}
	m.dataQuality.WithLabelValues(location).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request counts and durations for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
