package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes of one outbox row.
const (
	DeliveryPublished    = "published"
	DeliveryRetry        = "retry"
	DeliveryDeadLettered = "dead_lettered"
)

// OutboxMetrics follows events from the outbox table to Pub/Sub. A nil
// *OutboxMetrics records nothing.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	lag        *prometheus.HistogramVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "deliveries_total",
		Help:      "Outbox rows handled by topic and outcome.",
	}, []string{"topic", "outcome"})
	lag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_lag_seconds",
		Help:      "Time from event commit to broker ack.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"topic"})
	reg.MustRegister(deliveries, lag)
	return &OutboxMetrics{deliveries: deliveries, lag: lag}
}

// ObserveDelivery counts one row. lag is only recorded for published rows.
func (o *OutboxMetrics) ObserveDelivery(topic, outcome string, lag time.Duration) {
	if o == nil || o.deliveries == nil {
		return
	}
	topic = normalizeLabel(topic)
	o.deliveries.WithLabelValues(topic, outcome).Inc()
	if outcome == DeliveryPublished && lag > 0 {
		o.lag.WithLabelValues(topic).Observe(lag.Seconds())
	}
}
