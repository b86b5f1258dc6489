package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "oauth",
		Name:      "token_refresh_total",
		Help:      "Access token refresh attempts by provider and result.",
	}, []string{"provider", "result"})
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "sync_runs_total",
		Help:      "Ingestion runs by provider and result.",
	}, []string{"provider", "result"})
	activitiesAppendedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "activities_appended_total",
		Help:      "Normalized activities appended to the activity log.",
	}, []string{"provider"})
	activitiesSkippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "activities_skipped_total",
		Help:      "Fetched activities dropped before the log, by reason.",
	}, []string{"provider", "reason"})
	providerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "provider",
		Name:      "errors_total",
		Help:      "Non-2xx responses from third-party providers by status code.",
	}, []string{"provider", "status"})
	lastSyncGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trainlog",
		Subsystem: "ingest",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync.",
	}, []string{"provider"})
	weeksWrittenCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "weekly",
		Name:      "weeks_written_total",
		Help:      "Weekly progress aggregates written to the workbook.",
	})
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trainlog",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
	rateLimitedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainlog",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		tokenRefreshCounter,
		syncRunsCounter,
		activitiesAppendedCounter,
		activitiesSkippedCounter,
		providerErrorCounter,
		lastSyncGauge,
		weeksWrittenCounter,
		httpRequestDuration,
		rateLimitedCounter,
	)
}

func RecordTokenRefresh(provider string, err error) {
	tokenRefreshCounter.WithLabelValues(provider, result(err)).Inc()
}

// RecordSync counts one ingestion run and, on success, moves the watermark.
func RecordSync(provider string, appended int, at time.Time, err error) {
	syncRunsCounter.WithLabelValues(provider, result(err)).Inc()
	if err != nil {
		return
	}
	if appended > 0 {
		activitiesAppendedCounter.WithLabelValues(provider).Add(float64(appended))
	}
	if !at.IsZero() {
		lastSyncGauge.WithLabelValues(provider).Set(float64(at.Unix()))
	}
}

func RecordSkipped(provider, reason string, n int) {
	if n <= 0 {
		return
	}
	activitiesSkippedCounter.WithLabelValues(provider, reason).Add(float64(n))
}

func RecordProviderError(provider, status string) {
	providerErrorCounter.WithLabelValues(provider, status).Inc()
}

func RecordWeeksWritten(n int) {
	if n <= 0 {
		return
	}
	weeksWrittenCounter.Add(float64(n))
}

// RecordHTTPRequest observes one request against its route pattern.
func RecordHTTPRequest(route string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func RecordRateLimited() {
	rateLimitedCounter.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
