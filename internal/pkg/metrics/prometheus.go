package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportfox",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reportfox",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Billing metrics
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportfox",
			Subsystem: "billing",
			Name:      "transitions_total",
			Help:      "Subscription state transitions applied, by event and status change",
		},
		[]string{"event", "from", "to"},
	)

	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportfox",
			Subsystem: "billing",
			Name:      "webhooks_total",
			Help:      "Provider webhook deliveries by outcome",
		},
		[]string{"provider", "result"},
	)

	quotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportfox",
			Subsystem: "billing",
			Name:      "quota_rejections_total",
			Help:      "Usage increments rejected because the quota was exhausted",
		},
		[]string{"counter"},
	)

	rolloverSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reportfox",
			Subsystem: "billing",
			Name:      "rollover_sweep_duration_seconds",
			Help:      "Duration of the period rollover sweep in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
	)

	// Job queue metrics
	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportfox",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Background jobs processed by type and outcome",
		},
		[]string{"type", "status"},
	)
)

// Middleware records request counts and latencies per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = http.StatusInternalServerError
			}
		}

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTransition(event, from, to string) {
	transitionsTotal.WithLabelValues(event, from, to).Inc()
}

func RecordWebhook(provider, result string) {
	webhooksTotal.WithLabelValues(provider, result).Inc()
}

func RecordQuotaRejection(counter string) {
	quotaRejectionsTotal.WithLabelValues(counter).Inc()
}

func RecordRolloverSweep(duration time.Duration) {
	rolloverSweepDuration.Observe(duration.Seconds())
}

func RecordJob(jobType, status string) {
	jobsProcessedTotal.WithLabelValues(jobType, status).Inc()
}
