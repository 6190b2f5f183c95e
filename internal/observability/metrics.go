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

// Metrics stores Prometheus collectors used by the scheduler, sweeps and the ops server.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	jobRunsTotal            *prometheus.CounterVec
	jobRunDuration          *prometheus.HistogramVec
	sessionTransitionsTotal *prometheus.CounterVec
	remindersTotal          *prometheus.CounterVec
	deliveriesTotal         *prometheus.CounterVec
	deliverySendDuration    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lesson_engine",
				Name:      "http_requests_total",
				Help:      "Total number of ops HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lesson_engine",
				Name:      "http_request_duration_seconds",
				Help:      "Ops HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		jobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lesson_engine",
				Name:      "job_runs_total",
				Help:      "Scheduled job executions by job and outcome.",
			},
			[]string{"job", "outcome"},
		),
		jobRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lesson_engine",
				Name:      "job_run_duration_seconds",
				Help:      "Scheduled job execution time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"job"},
		),
		sessionTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lesson_engine",
				Name:      "session_transitions_total",
				Help:      "Class sessions moved by the status sweep, by target status.",
			},
			[]string{"status"},
		),
		remindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lesson_engine",
				Name:      "reminders_total",
				Help:      "Reminder candidates by lead time and outcome.",
			},
			[]string{"lead", "outcome"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lesson_engine",
				Name:      "deliveries_total",
				Help:      "External channel delivery attempts by channel and final status.",
			},
			[]string{"channel", "status"},
		),
		deliverySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lesson_engine",
				Name:      "delivery_send_duration_seconds",
				Help:      "Channel adaptor send duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.jobRunsTotal,
		m.jobRunDuration,
		m.sessionTransitionsTotal,
		m.remindersTotal,
		m.deliveriesTotal,
		m.deliverySendDuration,
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

func (m *Metrics) ObserveJobRun(job string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	jobLabel := normalizeLabel(job)
	m.jobRunsTotal.WithLabelValues(jobLabel, normalizeLabel(outcome)).Inc()
	if duration > 0 {
		m.jobRunDuration.WithLabelValues(jobLabel).Observe(duration.Seconds())
	}
}

func (m *Metrics) IncSessionTransition(status string) {
	if m == nil {
		return
	}
	m.sessionTransitionsTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncReminder(lead string, outcome string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(normalizeLabel(lead), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncDelivery(channel string, status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(status)).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliverySendDuration.WithLabelValues(normalizeLabel(channel)).Observe(max(duration.Seconds(), 0))
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
