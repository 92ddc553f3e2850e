package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmitCounter     = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_jobs_submitted_total", Help: "Total submitted jobs"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_rate_limit_rejects_total", Help: "Submissions rejected by rate limiter"})
	CompletedCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_jobs_completed_total", Help: "Jobs reported completed"})
	FailedCounter     = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_jobs_failed_total", Help: "Jobs reported failed"})
	ReclaimedCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_jobs_reclaimed_total", Help: "Stale assignments returned to pending"})
	HeartbeatCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_heartbeats_total", Help: "Heartbeats processed"})
	PendingGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dispatch_jobs_pending", Help: "Jobs waiting for assignment"})
	AssignedGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dispatch_jobs_assigned", Help: "Jobs currently assigned"})
	AliveWorkersGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dispatch_workers_alive", Help: "Workers in the alive state"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmitCounter,
			RateLimitRejects,
			CompletedCounter,
			FailedCounter,
			ReclaimedCounter,
			HeartbeatCounter,
			PendingGauge,
			AssignedGauge,
			AliveWorkersGauge,
		)
	})
	return promhttp.Handler()
}
