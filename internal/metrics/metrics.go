package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the simulation metrics.
type Registry struct {
	ControlRangeWarnings *prometheus.CounterVec
	ControlTicks         prometheus.Counter
	SetupFailures        *prometheus.CounterVec
	TrialsTotal          *prometheus.CounterVec
	TrialFitness         *prometheus.HistogramVec
	TuningAccepted       prometheus.Counter

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.ControlRangeWarnings = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensegrity_control_range_warnings_total",
			Help: "Impedance gains clamped to zero because a negative value was requested",
		},
		[]string{"group", "field"},
	)
	r.ControlTicks = f.NewCounter(prometheus.CounterOpts{
		Name: "tensegrity_control_ticks_total",
		Help: "CPG control ticks executed",
	})
	r.SetupFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensegrity_setup_failures_total",
			Help: "Model setups aborted, by error kind",
		},
		[]string{"kind"},
	)
	r.TrialsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensegrity_trials_total",
			Help: "Trial episodes run",
		},
		[]string{"robot", "status"},
	)
	r.TrialFitness = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tensegrity_trial_fitness",
			Help:    "Center of mass displacement reached per trial",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"robot"},
	)
	r.TuningAccepted = f.NewCounter(prometheus.CounterOpts{
		Name: "tensegrity_tuning_accepted_total",
		Help: "Candidate parameter sets accepted by the tuner",
	})
	return r
}

func (r *Registry) RecordClamp(group, field string) {
	r.ControlRangeWarnings.WithLabelValues(group, field).Inc()
}

func (r *Registry) RecordTick() {
	r.ControlTicks.Inc()
}

func (r *Registry) RecordSetupFailure(kind string) {
	r.SetupFailures.WithLabelValues(kind).Inc()
}

func (r *Registry) RecordTrial(robot, status string, fitness float64) {
	r.TrialsTotal.WithLabelValues(robot, status).Inc()
	if status == "ok" {
		r.TrialFitness.WithLabelValues(robot).Observe(fitness)
	}
}

func (r *Registry) RecordTuningAccept() {
	r.TuningAccepted.Inc()
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
