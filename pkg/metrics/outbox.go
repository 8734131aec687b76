package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the publisher's per-event results.
type OutboxMetrics struct {
	publish *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	publish := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relivv_outbox_publish_total",
		Help: "Outbox publish attempts by event type and result (published, retry, dead_letter).",
	}, []string{"event_type", "result"})
	reg.MustRegister(publish)
	return &OutboxMetrics{publish: publish}
}

func (m *OutboxMetrics) ObservePublish(eventType, result string) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
