package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job run statuses used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds the job collectors and registers them on registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdesk_jobs_total",
			Help: "Job executions by job name and status (success, failure, skipped).",
		}, []string{"job", "status"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledgerdesk_jobs_in_flight",
			Help: "Job executions currently running.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerdesk_job_duration_seconds",
			Help:    "Duration in seconds of background job executions.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.inFlight, m.duration)
	}
	return m
}

// Tracker instruments a single job run. Exactly one of End or Skip should be
// called; later calls are ignored.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	done    bool
}

// Track starts a run of job.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{metrics: m, job: job, start: time.Now()}
	if m != nil {
		m.inFlight.WithLabelValues(job).Inc()
	}
	return t
}

// End records the run as success or failure and returns err untouched.
func (t *Tracker) End(err error) error {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	t.finish(status)
	return err
}

// Skip records a run that found nothing to do.
func (t *Tracker) Skip() {
	t.finish(StatusSkipped)
}

func (t *Tracker) finish(status string) {
	if t == nil || t.done || t.metrics == nil {
		return
	}
	t.done = true
	t.metrics.inFlight.WithLabelValues(t.job).Dec()
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
}
