// Package metrics exposes Prometheus metrics for live sessions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	FramesSent       prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	PlaybacksDropped *prometheus.CounterVec

	TurnsTotal     *prometheus.CounterVec
	SummariesTotal *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
}

// New creates a Metrics instance on a private registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "live_tutor"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions",
		}, []string{"mode", "status"}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		}, []string{"mode"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Captured audio frames queued for the engine",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Captured audio frames dropped before reaching the engine",
		}, []string{"reason"}),
		PlaybacksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_dropped_total",
			Help:      "Inbound audio chunks that could not be played",
		}, []string{"reason"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_total",
			Help:      "Completed transcript turns",
		}, []string{"speaker"}),
		SummariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Summarization ticks by result",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.FramesSent,
		m.FramesDropped,
		m.PlaybacksDropped,
		m.TurnsTotal,
		m.SummariesTotal,
		m.HTTPRequests,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a session becoming active
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionEnded records an active session ending
func (m *Metrics) SessionEnded(mode, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(mode, status).Inc()
	m.SessionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// FrameSent implements audio.FrameRecorder
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// FrameDropped implements audio.FrameRecorder
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// PlaybackDropped implements audio.PlaybackRecorder
func (m *Metrics) PlaybackDropped(reason string) {
	if m == nil {
		return
	}
	m.PlaybacksDropped.WithLabelValues(reason).Inc()
}

// TurnCompleted records one transcript turn
func (m *Metrics) TurnCompleted(speaker string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(speaker).Inc()
}

// SummaryResult implements summary.Recorder
func (m *Metrics) SummaryResult(result string) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(result).Inc()
}

// Middleware counts requests by route pattern and status
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
