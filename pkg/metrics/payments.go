package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts reconcile outcomes and checkout results.
type PaymentMetrics struct {
	reconcile *prometheus.CounterVec
	checkout  *prometheus.CounterVec
	released  prometheus.Counter
}

// NewPaymentMetrics registers the payment collectors on reg. A nil registerer
// yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relivv_payment_reconcile_total",
		Help: "Payment session reconcile attempts by trigger and outcome.",
	}, []string{"source", "outcome"})
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relivv_checkout_total",
		Help: "Checkout session creations by kind and result.",
	}, []string{"kind", "result"})
	released := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relivv_escrow_released_total",
		Help: "Transactions whose funds were released to the seller.",
	})
	reg.MustRegister(reconcile, checkout, released)
	return &PaymentMetrics{reconcile: reconcile, checkout: checkout, released: released}
}

// ObserveReconcile records one reconcile attempt. source is webhook, poll or sweep.
func (m *PaymentMetrics) ObserveReconcile(source, outcome string) {
	if m == nil || m.reconcile == nil {
		return
	}
	m.reconcile.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// ObserveCheckout records a checkout attempt. kind is product or cart.
func (m *PaymentMetrics) ObserveCheckout(kind, result string) {
	if m == nil || m.checkout == nil {
		return
	}
	m.checkout.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) IncReleased() {
	if m == nil || m.released == nil {
		return
	}
	m.released.Inc()
}
