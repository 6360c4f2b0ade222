// Package observability exposes Prometheus metrics for the live transport,
// the fan-out path, the HTTP API and background jobs.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one process.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	router.SetObserver(metrics)
//	chatService.SetRecorder(metrics)
type Metrics struct {
	// ActiveConnections is the number of registered live connections.
	ActiveConnections prometheus.Gauge

	// ConnectionsTotal counts accepted live connections.
	ConnectionsTotal prometheus.Counter

	// EventsTotal counts per-connection event deliveries.
	// Labels: event, result (delivered|dropped)
	EventsTotal *prometheus.CounterVec

	// MessagesTotal counts persisted chat messages.
	// Labels: type (TEXT|IMAGE|FILE)
	MessagesTotal *prometheus.CounterVec

	// NotificationsTotal counts notification rows attempted during fan-out.
	// Labels: type, result (created|failed)
	NotificationsTotal *prometheus.CounterVec

	// NotificationsPruned counts read notifications removed by retention.
	NotificationsPruned prometheus.Counter

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, route, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses a fresh registry, which keeps tests isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shiftline_realtime_connections",
			Help: "Number of live connections currently registered",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiftline_realtime_connections_total",
			Help: "Total number of live connections accepted",
		}),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftline_realtime_events_total",
				Help: "Per-connection event deliveries by event and result",
			},
			[]string{"event", "result"},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftline_chat_messages_total",
				Help: "Total number of chat messages persisted by type",
			},
			[]string{"type"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftline_notifications_total",
				Help: "Notification rows attempted during fan-out by type and result",
			},
			[]string{"type", "result"},
		),
		NotificationsPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiftline_notifications_pruned_total",
			Help: "Total number of read notifications removed by retention",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiftline_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route", "status_code"},
		),
		gatherer: reg,
	}
}

// ConnectionOpened records a registered live connection.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Inc()
	m.ConnectionsTotal.Inc()
}

// ConnectionClosed records an unregistered live connection.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Dec()
}

// EventDelivered records one delivery attempt to one connection.
func (m *Metrics) EventDelivered(event string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	m.EventsTotal.WithLabelValues(event, result).Inc()
}

// MessagePersisted records a committed chat message.
func (m *Metrics) MessagePersisted(messageType string) {
	m.MessagesTotal.WithLabelValues(messageType).Inc()
}

// NotificationsCreated records the notification outcome of one send.
func (m *Metrics) NotificationsCreated(notificationType string, created, failed int) {
	if created > 0 {
		m.NotificationsTotal.WithLabelValues(notificationType, "created").Add(float64(created))
	}
	if failed > 0 {
		m.NotificationsTotal.WithLabelValues(notificationType, "failed").Add(float64(failed))
	}
}

// NotificationsRemoved records a retention run.
func (m *Metrics) NotificationsRemoved(n int64) {
	if n > 0 {
		m.NotificationsPruned.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// HTTPMiddleware observes request latency labelled by the matched chi route.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
