// Package metrics exposes Prometheus collectors for the lifecycle runtime.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "lifecycle"

// Collectors groups every lifecycle metric. Each instance owns its collectors
// so several modules can register against separate registries.
type Collectors struct {
	// InvocationsFired counts successful claims of scheduled invocations.
	InvocationsFired prometheus.Counter
	// InvocationOutcomes counts firings by outcome (executed, stale, failed, retry).
	InvocationOutcomes *prometheus.CounterVec
	// Transitions counts state chart transitions by event.
	Transitions *prometheus.CounterVec
	// ActionOutcomes counts action runs by action and status (success, failure).
	ActionOutcomes *prometheus.CounterVec
	// DispatchDuration observes one dispatcher pass.
	DispatchDuration prometheus.Histogram
	// PendingRequests is set from inspection calls.
	PendingRequests prometheus.Gauge
	// CommandOutcomes counts command handler executions by message type and status.
	CommandOutcomes *prometheus.CounterVec
}

// New builds collectors under namespace and registers them with reg. A nil
// registerer skips registration.
func New(reg prometheus.Registerer, namespace string) (*Collectors, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	c := &Collectors{
		InvocationsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_fired_total",
			Help:      "Total number of scheduled invocations claimed and delivered",
		}),
		InvocationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_outcomes_total",
			Help:      "Scheduled invocation firings by outcome",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State chart transitions by event",
		}, []string{"event", "from", "to"}),
		ActionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_runs_total",
			Help:      "Lifecycle action runs by action and status",
		}, []string{"action", "status"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_pass_duration_seconds",
			Help:      "Duration of one dispatcher pass over due invocations",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Pending requests seen by the last inspection",
		}),
		CommandOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command handler executions by message type and status",
		}, []string{"command", "status"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, collector := range c.all() {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return c, nil
}

// MustNew panics when registration fails.
func MustNew(reg prometheus.Registerer, namespace string) *Collectors {
	c, err := New(reg, namespace)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.InvocationsFired,
		c.InvocationOutcomes,
		c.Transitions,
		c.ActionOutcomes,
		c.DispatchDuration,
		c.PendingRequests,
		c.CommandOutcomes,
	}
}

// Transition records a state chart transition.
func (c *Collectors) Transition(event, from, to string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(event, from, to).Inc()
}

// ActionOutcome records an action run.
func (c *Collectors) ActionOutcome(action string, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	c.ActionOutcomes.WithLabelValues(action, status).Inc()
}

// InvocationOutcome records how a firing ended.
func (c *Collectors) InvocationOutcome(outcome string) {
	if c == nil {
		return
	}
	c.InvocationOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveDispatch records the duration of one dispatcher pass.
func (c *Collectors) ObserveDispatch(d time.Duration) {
	if c == nil {
		return
	}
	c.DispatchDuration.Observe(d.Seconds())
}

// SetPending records the pending request count.
func (c *Collectors) SetPending(n int) {
	if c == nil {
		return
	}
	c.PendingRequests.Set(float64(n))
}

// CommandOutcome records a command handler execution.
func (c *Collectors) CommandOutcome(command, status string) {
	if c == nil {
		return
	}
	c.CommandOutcomes.WithLabelValues(command, status).Inc()
}
