package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whgw_events_total",
			Help: "Triggered events by type and enqueue outcome",
		},
		[]string{"event_type", "outcome"}, // enqueued|rejected|dropped
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whgw_deliveries_total",
			Help: "Finished delivery chains by terminal outcome and event type",
		},
		[]string{"outcome", "event_type"}, // success|permanent_failure|retries_exhausted|skipped
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whgw_retries_total",
			Help: "Scheduled delivery retries",
		},
	)

	SuspensionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whgw_subscription_suspensions_total",
			Help: "Subscriptions auto-suspended after sustained failure",
		},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whgw_delivery_duration_seconds",
			Help:    "Latency of individual delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		DeliveriesTotal,
		RetriesTotal,
		SuspensionsTotal,
		DeliveryDuration,
	)
}
