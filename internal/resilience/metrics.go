package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors, labelled by upstream target. They register on the
// default registry at init.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kasir",
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Breaker state per upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kasir",
		Subsystem: "upstream",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per upstream.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kasir",
		Subsystem: "upstream",
		Name:      "breaker_opened_total",
		Help:      "Times a breaker opened per upstream.",
	}, []string{"target"})
	BreakerRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kasir",
		Subsystem: "upstream",
		Name:      "breaker_rejected_total",
		Help:      "Calls refused by an open or probing breaker.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, BreakerRejected)
}
