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

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	operationsAcceptedTotal *prometheus.CounterVec
	operationsFinishedTotal *prometheus.CounterVec
	operationDuration       *prometheus.HistogramVec
	transactionsTotal       *prometheus.CounterVec
	workerInflight          *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relief_admin",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relief_admin",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		operationsAcceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relief_admin",
				Name:      "operations_accepted_total",
				Help:      "Total number of admin operations accepted for processing.",
			},
			[]string{"action"},
		),
		operationsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relief_admin",
				Name:      "operations_finished_total",
				Help:      "Total number of operations reaching a terminal status.",
			},
			[]string{"action", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relief_admin",
				Name:      "operation_duration_seconds",
				Help:      "End-to-end operation run duration in seconds grouped by action.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"action"},
		),
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relief_admin",
				Name:      "transactions_total",
				Help:      "Total number of submitted transactions grouped by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "relief_admin",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight operation runs grouped by action.",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.operationsAcceptedTotal,
		m.operationsFinishedTotal,
		m.operationDuration,
		m.transactionsTotal,
		m.workerInflight,
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

func (m *Metrics) IncOperationAccepted(action string) {
	if m == nil {
		return
	}
	m.operationsAcceptedTotal.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *Metrics) IncOperationFinished(action string, status string) {
	if m == nil {
		return
	}
	m.operationsFinishedTotal.WithLabelValues(normalizeLabel(action), normalizeLabel(status)).Inc()
}

func (m *Metrics) ObserveOperationDuration(action string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.operationDuration.WithLabelValues(normalizeLabel(action)).Observe(seconds)
}

func (m *Metrics) IncTransaction(action string, outcome string) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncWorkerInFlight(action string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *Metrics) DecWorkerInFlight(action string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(action)).Dec()
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
