package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// CronJobMetrics records cron job runs by job name and result.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relivv_cron_job_runs_total",
			Help: "Cron job runs by job and result (success, failure).",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relivv_cron_job_duration_seconds",
			Help:    "Wall time of a single cron job run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2.5, 8),
		}, []string{"job", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relivv_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run. Alert when it stops moving.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// ObserveRun records one run of job that took took and ended with err.
func (m *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	result := resultSuccess
	if err != nil {
		result = resultFailure
	} else {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
	m.runs.WithLabelValues(job, result).Inc()
	m.duration.WithLabelValues(job, result).Observe(took.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
