package licensing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the lifecycle counters. A nil *Metrics records nothing.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	conflictRetries *prometheus.CounterVec
}

// NewMetrics registers the lifecycle counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keygate",
			Name:      "webhook_events_total",
			Help:      "Provider webhook events by provider, event type and outcome.",
		}, []string{"provider", "type", "outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keygate",
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle decisions by event and outcome.",
		}, []string{"event", "outcome"}),
		conflictRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keygate",
			Name:      "conflict_retries_total",
			Help:      "Optimistic concurrency retries by operation.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) webhookEvent(provider, eventType string, outcome Outcome) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, eventType, string(outcome)).Inc()
}

func (m *Metrics) transition(event EventKind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(event), outcome).Inc()
}

func (m *Metrics) conflictRetry(operation string) {
	if m == nil {
		return
	}
	m.conflictRetries.WithLabelValues(operation).Inc()
}
