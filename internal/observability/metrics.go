package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the inbound API and the
// pipeline workers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	callbacksReceivedTotal *prometheus.CounterVec
	statusUpdatesTotal     *prometheus.CounterVec
	duplicateUpdatesTotal  *prometheus.CounterVec
	callbackNoMatchTotal   *prometheus.CounterVec
	serviceCallbackTotal   *prometheus.CounterVec
	retryScheduledTotal    *prometheus.CounterVec
	technicalFailureTotal  *prometheus.CounterVec
	complaintsTotal        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "delivery_pipeline",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		callbacksReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "callbacks_received_total",
				Help:      "Total number of provider callbacks accepted for processing.",
			},
			[]string{"provider"},
		),
		statusUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "status_updates_total",
				Help:      "Total number of notification status transitions written, by provider and status.",
			},
			[]string{"provider", "status"},
		),
		duplicateUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "duplicate_updates_total",
				Help:      "Total number of duplicate or out-of-order callbacks observed and skipped.",
			},
			[]string{"provider"},
		),
		callbackNoMatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "callback_no_match_total",
				Help:      "Total number of callbacks whose reference matched no notification.",
			},
			[]string{"provider"},
		),
		serviceCallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "service_callbacks_total",
				Help:      "Total number of outbound service callback attempts by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "retry_scheduled_total",
				Help:      "Total number of tasks rescheduled onto the retry queue.",
			},
			[]string{"task"},
		),
		technicalFailureTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "technical_failures_total",
				Help:      "Total number of notifications escalated to technical-failure.",
			},
			[]string{"task"},
		),
		complaintsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "delivery_pipeline",
				Name:      "complaints_total",
				Help:      "Total number of provider-reported complaints recorded.",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.callbacksReceivedTotal,
		m.statusUpdatesTotal,
		m.duplicateUpdatesTotal,
		m.callbackNoMatchTotal,
		m.serviceCallbackTotal,
		m.retryScheduledTotal,
		m.technicalFailureTotal,
		m.complaintsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncCallbackReceived(provider string) {
	if m == nil {
		return
	}
	m.callbacksReceivedTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncStatusUpdate(provider string, status string) {
	if m == nil {
		return
	}
	m.statusUpdatesTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

func (m *Metrics) IncDuplicateUpdate(provider string) {
	if m == nil {
		return
	}
	m.duplicateUpdatesTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncCallbackNoMatch(provider string) {
	if m == nil {
		return
	}
	m.callbackNoMatchTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncServiceCallback(callbackType string, outcome string) {
	if m == nil {
		return
	}
	m.serviceCallbackTotal.WithLabelValues(normalizeLabel(callbackType), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncRetryScheduled(task string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(task)).Inc()
}

func (m *Metrics) IncTechnicalFailure(task string) {
	if m == nil {
		return
	}
	m.technicalFailureTotal.WithLabelValues(normalizeLabel(task)).Inc()
}

func (m *Metrics) IncComplaint(provider string) {
	if m == nil {
		return
	}
	m.complaintsTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
