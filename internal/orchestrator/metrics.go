package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors reporting pipeline activity.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
	improvements  *prometheus.CounterVec
	tasksActive   prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Created once so instantiating several
// orchestrators (tests, embedded use) does not panic on re-registration.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance on the given registerer. Pass a
// fresh registry when isolated collectors are needed (tests). Registration
// errors other than duplicate registration panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kittycore",
			Subsystem: "orchestrator",
			Name:      "stage_duration_seconds",
			Help:      "Duration spent in each task lifecycle stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)
	stepFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kittycore",
			Subsystem: "orchestrator",
			Name:      "step_failures_total",
			Help:      "Execution steps that ended failed, by error kind.",
		},
		[]string{"kind"},
	)
	improvements := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kittycore",
			Subsystem: "orchestrator",
			Name:      "improvement_attempts_total",
			Help:      "Improvement retries run against poorly validated steps.",
		},
		[]string{"outcome"},
	)
	tasksActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kittycore",
			Subsystem: "orchestrator",
			Name:      "tasks_active",
			Help:      "Tasks currently being solved.",
		},
	)

	collectors := []prometheus.Collector{stageDuration, stepFailures, improvements, tasksActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector.(type) {
				case *prometheus.HistogramVec:
					stageDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case *prometheus.CounterVec:
					if collector == prometheus.Collector(stepFailures) {
						stepFailures = already.ExistingCollector.(*prometheus.CounterVec)
					} else {
						improvements = already.ExistingCollector.(*prometheus.CounterVec)
					}
				case prometheus.Gauge:
					tasksActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		stageDuration: stageDuration,
		stepFailures:  stepFailures,
		improvements:  improvements,
		tasksActive:   tasksActive,
	}
}

// ObserveStage records the time a lifecycle stage took with its end status.
func (m *Metrics) ObserveStage(stage, status string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// IncStepFailure counts one failed execution step by error kind.
func (m *Metrics) IncStepFailure(kind string) {
	if m == nil || m.stepFailures == nil {
		return
	}
	m.stepFailures.WithLabelValues(kind).Inc()
}

// IncImprovement counts one improvement attempt with its outcome
// ("improved" or "unchanged").
func (m *Metrics) IncImprovement(outcome string) {
	if m == nil || m.improvements == nil {
		return
	}
	m.improvements.WithLabelValues(outcome).Inc()
}

// IncActiveTasks marks a task as in flight.
func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

// DecActiveTasks marks a task as finished.
func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}
