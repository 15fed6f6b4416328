package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsClaimed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "quote_jobs_claimed_total", Help: "Jobs claimed for processing"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "quote_jobs_completed_total", Help: "Jobs finalized as completed"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "quote_jobs_failed_total", Help: "Jobs finalized as failed"})
	QuotesCollected  = prometheus.NewCounter(prometheus.CounterOpts{Name: "quotes_collected_total", Help: "Quote requests that produced a stored result"})
	QuotesFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "quotes_failed_total", Help: "Quote requests that failed"})
	SessionsOpened   = prometheus.NewCounter(prometheus.CounterOpts{Name: "vendor_sessions_established_total", Help: "Vendor sessions established"})
	SessionFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "vendor_session_failures_total", Help: "Vendor session attempts rejected"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "intake_rate_limit_rejects_total", Help: "Job submissions rejected by rate limiter"})
	ProcessingGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "quote_jobs_processing", Help: "Jobs currently being processed"})
	PendingGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "quote_jobs_pending", Help: "Jobs waiting to be claimed"})

	VendorCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vendor_call_duration_seconds",
		Help:    "Vendor API call latency by endpoint and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "outcome"})
)

// ObserveVendorCall records one vendor round trip.
func ObserveVendorCall(endpoint string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	VendorCallDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsClaimed,
			JobsCompleted,
			JobsFailed,
			QuotesCollected,
			QuotesFailed,
			SessionsOpened,
			SessionFailures,
			RateLimitRejects,
			ProcessingGauge,
			PendingGauge,
			VendorCallDuration,
		)
	})
	return promhttp.Handler()
}
