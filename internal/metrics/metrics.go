package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grantmatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	matchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmatch",
			Subsystem: "match",
			Name:      "requests_total",
			Help:      "Matching pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)

	matchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "grantmatch",
			Subsystem: "match",
			Name:      "duration_seconds",
			Help:      "Duration of matching pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	keywordFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "grantmatch",
			Subsystem: "match",
			Name:      "keyword_extraction_failures_total",
			Help:      "Keyword extraction calls that failed and yielded no keywords.",
		},
	)

	reasonFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmatch",
			Subsystem: "match",
			Name:      "reason_fallbacks_total",
			Help:      "Match reasons replaced by the template fallback, by cause.",
		},
		[]string{"cause"},
	)

	ruleHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmatch",
			Subsystem: "match",
			Name:      "rule_hits_total",
			Help:      "Filter rule used per query.",
		},
		[]string{"rule"},
	)

	importItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantmatch",
			Subsystem: "import",
			Name:      "items_total",
			Help:      "Imported grant items by source and result.",
		},
		[]string{"source", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		matchRequests,
		matchDuration,
		keywordFailures,
		reasonFallbacks,
		ruleHits,
		importItems,
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route pattern.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request().Method

		httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return err
	}
}

func RecordMatch(outcome string, d time.Duration) {
	matchRequests.WithLabelValues(outcome).Inc()
	matchDuration.Observe(d.Seconds())
}

func RecordKeywordFailure() {
	keywordFailures.Inc()
}

func RecordReasonFallback(cause string) {
	reasonFallbacks.WithLabelValues(cause).Inc()
}

func RecordRuleHit(rule string) {
	ruleHits.WithLabelValues(rule).Inc()
}

func RecordImportItem(source, result string) {
	importItems.WithLabelValues(source, result).Inc()
}
