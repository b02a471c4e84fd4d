package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run statuses recorded on odyssey_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks runs asynq will not retry, such as undecodable payloads.
	StatusSkipped = "skipped"
)

// Metrics holds the collectors shared by the transition, matrix snapshot and
// audit verification handlers.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	sealsChecked prometheus.Counter
	sealsBroken  prometheus.Counter
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer returns
// one process-wide instance bound to the default registry, so the API and the
// worker can both ask for it.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	sharedOnce.Do(func() {
		shared = register(prometheus.DefaultRegisterer)
	})
	return shared
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Docflow task runs by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_failures_total",
			Help: "Docflow task runs that returned an error, retried or not.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Wall time of docflow task runs.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"job"}),
		sealsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_audit_seals_checked_total",
			Help: "Audit entries whose seal was recomputed by the verification task.",
		}),
		sealsBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_audit_seal_mismatches_total",
			Help: "Audit entries whose seal did not match their content.",
		}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.sealsChecked, m.sealsBroken)
	return m
}

// Run times one task execution.
type Run struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Track starts timing a run of the task type job.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, started: time.Now()}
}

// End records the run and hands err back so handlers can
// `defer func() { err = run.End(err) }()`.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil || r.job == "" {
		return err
	}
	r.metrics.runs.WithLabelValues(r.job, runStatus(err)).Inc()
	if err != nil {
		r.metrics.failures.WithLabelValues(r.job).Inc()
	}
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.started).Seconds())
	return err
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// ObserveSealCheck records one verification pass over checked audit entries,
// of which mismatched failed their seal.
func (m *Metrics) ObserveSealCheck(checked, mismatched int) {
	if m == nil {
		return
	}
	if checked > 0 {
		m.sealsChecked.Add(float64(checked))
	}
	if mismatched > 0 {
		m.sealsBroken.Add(float64(mismatched))
	}
}
