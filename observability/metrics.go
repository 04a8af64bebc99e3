package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for Courier, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsPublishedTotal gu.Counter
	DeliveriesTotal      gu.Counter
	DeliveryLatency      gu.Histogram
	QuotaSkipsTotal      gu.Counter
	PendingDeliveries    gu.Gauge
}

// NewMetrics creates Courier metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector() for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsPublishedTotal: factory.Counter("courier_events_published_total"),
		DeliveriesTotal:      factory.Counter("courier_deliveries_total"),
		DeliveryLatency:      factory.Histogram("courier_delivery_latency_seconds"),
		QuotaSkipsTotal:      factory.Counter("courier_quota_skips_total"),
		PendingDeliveries:    factory.Gauge("courier_pending_deliveries"),
	}
}

// RecordDelivery records a delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(outcome string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"outcome": outcome}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
