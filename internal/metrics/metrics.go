// Package metrics provides Prometheus instrumentation for the platform.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path pattern and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "namura",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "namura",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// InvoicesTotal counts invoice lifecycle transitions by resulting status.
	InvoicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "namura",
			Name:      "invoices_total",
			Help:      "Invoice lifecycle transitions by resulting status.",
		},
		[]string{"status"},
	)

	// MeterReadingsTotal counts accepted meter reading submissions by meter type.
	MeterReadingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "namura",
			Name:      "meter_readings_total",
			Help:      "Accepted meter reading submissions by meter type.",
		},
		[]string{"meter_type"},
	)

	// NotificationsTotal counts outbound notification dispatches by result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "namura",
			Name:      "notifications_total",
			Help:      "Outbound notification dispatch attempts by result.",
		},
		[]string{"template", "result"},
	)

	// GateDenialsTotal counts subscription gate refusals by resource.
	GateDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "namura",
			Name:      "subscription_gate_denials_total",
			Help:      "Creations refused by the subscription gate, by resource.",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		InvoicesTotal,
		MeterReadingsTotal,
		NotificationsTotal,
		GateDenialsTotal,
	)
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
