package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeTimeout labels job runs cut off by the per-job timeout.
const OutcomeTimeout = "timeout"

// SkipLockHeld labels cycles skipped because a peer worker held the lease.
const SkipLockHeld = "lock_held"

// CronJobMetrics tracks scheduled job runs. Alert on a stale
// last_success_timestamp rather than on single failures: the audit and the
// retention sweep both self-heal on the next cycle.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skips       *prometheus.CounterVec
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_runs_total",
		Help:      "Cron job runs by job and outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_duration_seconds",
		Help:      "Duration of cron jobs in seconds.",
		Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 240},
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run per job.",
	}, []string{"job"})
	skips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cron",
		Name:      "cycles_skipped_total",
		Help:      "Scheduler cycles that ran no jobs, by reason.",
	}, []string{"reason"})
	reg.MustRegister(runs, duration, lastSuccess, skips)
	return &CronJobMetrics{
		runs:        runs,
		duration:    duration,
		lastSuccess: lastSuccess,
		skips:       skips,
		now:         time.Now,
	}
}

// ObserveRun records one finished job run; err decides the outcome label.
func (c *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.runs.WithLabelValues(job, OutcomeTimeout).Inc()
		return
	case err != nil:
		c.runs.WithLabelValues(job, OutcomeFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, OutcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(c.now().Unix()))
}

func (c *CronJobMetrics) ObserveSkip(reason string) {
	if c == nil || c.skips == nil {
		return
	}
	c.skips.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
