// Package observability exports Prometheus metrics for saga runs and
// approval workflows.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

// Collector holds the metrics on a private registry. It implements
// saga.Observer and observes approval transitions.
type Collector struct {
	registry *prometheus.Registry

	SagaRuns            *prometheus.CounterVec
	SagaDuration        *prometheus.HistogramVec
	ActivityAttempts    *prometheus.CounterVec
	Compensations       *prometheus.CounterVec
	ApprovalTransitions *prometheus.CounterVec
}

var _ saga.Observer = (*Collector)(nil)

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		SagaRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_runs_total",
				Help:      "Total number of finished saga runs",
			},
			[]string{"saga", "status"},
		),
		SagaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "saga_run_duration_seconds",
				Help:      "Saga run duration in seconds, compensation included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"saga"},
		),
		ActivityAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_activity_attempts_total",
				Help:      "Total number of forward step attempts, retries included",
			},
			[]string{"saga", "activity"},
		),
		Compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_compensations_total",
				Help:      "Total number of compensations by outcome",
			},
			[]string{"saga", "activity", "outcome"},
		),
		ApprovalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_transitions_total",
				Help:      "Total number of approval workflow transitions by target status",
			},
			[]string{"status"},
		),
	}
	c.registry.MustRegister(
		c.SagaRuns,
		c.SagaDuration,
		c.ActivityAttempts,
		c.Compensations,
		c.ApprovalTransitions,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ActivityAttempted(sagaName, activity string, _ int) {
	c.ActivityAttempts.WithLabelValues(sagaName, activity).Inc()
}

func (c *Collector) ActivityCompensated(sagaName, activity string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.Compensations.WithLabelValues(sagaName, activity, outcome).Inc()
}

func (c *Collector) RunFinished(run *saga.Run) {
	c.SagaRuns.WithLabelValues(run.Name(), string(run.Status())).Inc()
	c.SagaDuration.WithLabelValues(run.Name()).Observe(run.Duration().Seconds())
}

// ObserveTransition counts a workflow transition. Attach it to
// approval.LocalHost.Transitions.
func (c *Collector) ObserveTransition(t approval.Transition) error {
	c.ApprovalTransitions.WithLabelValues(string(t.To)).Inc()
	return nil
}
