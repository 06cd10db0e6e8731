package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kolektiva"

// SchedulerMetrics captures collection scheduler and attempt health signals.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	attempts       *prometheus.CounterVec
	skips          *prometheus.CounterVec
	autoPayDisable prometheus.Counter
	codesConsumed  *prometheus.CounterVec
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
	mu            sync.Mutex
)

// Scheduler returns the process-wide scheduler metrics, registering them on
// first use against the default registry.
func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = newSchedulerMetrics(prometheus.DefaultRegisterer)
	})
	return scheduler
}

// ResetForTest drops the singleton so tests can swap registries.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	schedulerOnce = sync.Once{}
	scheduler = nil
}

func newSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	factory := promauto.With(reg)
	return &SchedulerMetrics{
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job executions by job name.",
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_errors_total",
			Help:      "Scheduler job failures by job name.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Scheduler job wall time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_attempts_total",
			Help:      "Collection attempts by outcome.",
		}, []string{"outcome"}),
		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_skips_total",
			Help:      "Obligations skipped during scheduled runs by reason.",
		}, []string{"reason"}),
		autoPayDisable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autopay_disablements_total",
			Help:      "Auto-pay preferences disabled after exhausted attempts.",
		}),
		codesConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_codes_total",
			Help:      "Verification code consumptions by result.",
		}, []string{"result"}),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncAttempt(outcome string) {
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *SchedulerMetrics) IncSkip(reason string) {
	m.skips.WithLabelValues(reason).Inc()
}

func (m *SchedulerMetrics) IncAutoPayDisabled() {
	m.autoPayDisable.Inc()
}

func (m *SchedulerMetrics) IncCodeConsumed(result string) {
	m.codesConsumed.WithLabelValues(result).Inc()
}
