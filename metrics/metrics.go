package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the dining server collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dining",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dining",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dining",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	financeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dining",
			Subsystem: "finance",
			Name:      "operations_total",
			Help:      "Ledger and finalization operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	finalizationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dining",
			Subsystem: "finance",
			Name:      "finalization_duration_seconds",
			Help:      "Duration of month finalize and undo runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"operation"},
	)

	balanceDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dining",
			Subsystem: "finance",
			Name:      "balance_drift_members",
			Help:      "Members whose live balance differs from the ledger at the last check.",
		},
	)

	mealRateCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dining",
			Subsystem: "finance",
			Name:      "meal_rate_cache_total",
			Help:      "Running meal rate cache lookups.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		financeOperations,
		finalizationDuration,
		balanceDrift,
		mealRateCache,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request metrics labelled by the matched route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordFinanceOperation counts one ledger or finalization call.
func RecordFinanceOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	financeOperations.WithLabelValues(operation, outcome).Inc()
}

func ObserveFinalization(operation string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	finalizationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetBalanceDrift(members int) {
	balanceDrift.Set(float64(members))
}

func RecordMealRateCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	mealRateCache.WithLabelValues(result).Inc()
}
