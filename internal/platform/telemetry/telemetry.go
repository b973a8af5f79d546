// Package telemetry exposes Prometheus metrics for the HTTP edge, the local
// staging area, the replay engine and the live-write circuit breaker.
//
// All helper methods are safe on a nil *Metrics so packages can be used and
// tested without wiring metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	stagedWrites       *prometheus.CounterVec
	stageWriteFailures *prometheus.CounterVec
	stageReadErrors    *prometheus.CounterVec

	replayRecords      *prometheus.CounterVec
	replayBatches      *prometheus.CounterVec
	replayPassDuration prometheus.Histogram
	replayMisfires     *prometheus.CounterVec

	breakerState prometheus.Gauge
}

// New builds a Metrics set on its own registry, including the Go runtime and
// process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		stagedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "writes_total",
			Help:      "Payloads written to the local staging area.",
		}, []string{"entity", "action"}),
		stageWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "write_failures_total",
			Help:      "Payloads lost because the staging area could not be written. Alert if non-zero.",
		}, []string{"entity", "action"}),
		stageReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "read_errors_total",
			Help:      "Staged files skipped because they could not be read or parsed.",
		}, []string{"entity", "action"}),
		replayRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "records_total",
			Help:      "Staged records processed by replay, by outcome.",
		}, []string{"entity", "action", "outcome"}),
		replayBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "batches_total",
			Help:      "Replay batches by outcome (committed, partial, released).",
		}, []string{"entity", "action", "outcome"}),
		replayPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a full replay pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		replayMisfires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "misfires_total",
			Help:      "Scheduler fires that arrived while a pass was running.",
		}, []string{"policy"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "breaker_open",
			Help:      "1 while the live-write circuit breaker is open, 0.5 half-open, 0 closed.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.stagedWrites, m.stageWriteFailures, m.stageReadErrors,
		m.replayRecords, m.replayBatches, m.replayPassDuration, m.replayMisfires,
		m.breakerState,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by the echo route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) StagedWrite(entity, action string) {
	if m == nil {
		return
	}
	m.stagedWrites.WithLabelValues(entity, action).Inc()
}

func (m *Metrics) StageWriteFailed(entity, action string) {
	if m == nil {
		return
	}
	m.stageWriteFailures.WithLabelValues(entity, action).Inc()
}

func (m *Metrics) StageReadError(entity, action string) {
	if m == nil {
		return
	}
	m.stageReadErrors.WithLabelValues(entity, action).Inc()
}

func (m *Metrics) ReplayRecords(entity, action, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.replayRecords.WithLabelValues(entity, action, outcome).Add(float64(n))
}

func (m *Metrics) ReplayBatch(entity, action, outcome string) {
	if m == nil {
		return
	}
	m.replayBatches.WithLabelValues(entity, action, outcome).Inc()
}

func (m *Metrics) ReplayPass(d time.Duration) {
	if m == nil {
		return
	}
	m.replayPassDuration.Observe(d.Seconds())
}

func (m *Metrics) ReplayMisfire(policy string) {
	if m == nil {
		return
	}
	m.replayMisfires.WithLabelValues(policy).Inc()
}

// BreakerState takes gobreaker's state names.
func (m *Metrics) BreakerState(state string) {
	if m == nil {
		return
	}
	switch state {
	case "open":
		m.breakerState.Set(1)
	case "half-open":
		m.breakerState.Set(0.5)
	default:
		m.breakerState.Set(0)
	}
}
