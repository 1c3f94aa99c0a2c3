// Package metrics exposes the engine's Prometheus instrumentation.
// Collection is optional: an engine without a metrics set runs unmetered.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the engine's collectors. Register them on a registry of
// the host's choosing; the engine only increments.
type Set struct {
	Transactions   *prometheus.CounterVec
	AsyncDispatch  prometheus.Counter
	AsyncResumed   prometheus.Counter
	Recomputes     prometheus.Counter
	SpillErrors    prometheus.Counter
	CircularErrors prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tabula",
			Name:      "transactions_total",
			Help:      "Finalized transactions by source.",
		}, []string{"source"}),
		AsyncDispatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Name:      "async_dispatch_total",
			Help:      "Code runs dispatched to external collaborators.",
		}),
		AsyncResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Name:      "async_resumed_total",
			Help:      "Suspended transactions resumed with a result.",
		}),
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Name:      "recomputes_total",
			Help:      "Code cells re-evaluated by the scheduler.",
		}),
		SpillErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Name:      "spill_errors_total",
			Help:      "Table outputs blocked by existing content.",
		}),
		CircularErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabula",
			Name:      "circular_errors_total",
			Help:      "Evaluations rejected for circular references.",
		}),
	}
	reg.MustRegister(
		s.Transactions,
		s.AsyncDispatch,
		s.AsyncResumed,
		s.Recomputes,
		s.SpillErrors,
		s.CircularErrors,
	)
	return s
}
