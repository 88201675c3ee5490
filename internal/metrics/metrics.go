// Package metrics exposes Prometheus counters for the monitoring loop,
// alert delivery, and webhook ingestion.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marzbot_poll_cycles_total",
			Help: "Total poll cycles by outcome",
		},
		[]string{"outcome"}, // completed, skipped, fetch_failed
	)

	NodesUnhealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marzbot_nodes_unhealthy",
			Help: "Number of nodes with an outstanding unhealthy record",
		},
	)

	NodeAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marzbot_node_alerts_total",
			Help: "Total node alerts sent by kind",
		},
		[]string{"kind"}, // down, reminder, recovery
	)

	AlertDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marzbot_alert_deliveries_total",
			Help: "Per-recipient alert delivery attempts by outcome",
		},
		[]string{"outcome"}, // sent, failed
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marzbot_webhook_events_total",
			Help: "Inbound webhook events by disposition",
		},
		[]string{"disposition"}, // accepted, rejected, discarded, notified
	)
)

// RecordPollCycle increments the poll cycle counter for an outcome.
func RecordPollCycle(outcome string) {
	PollCyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordNodeAlert increments the node alert counter for a kind.
func RecordNodeAlert(kind string) {
	NodeAlertsTotal.WithLabelValues(kind).Inc()
}

// RecordDelivery increments the delivery counter for an outcome.
func RecordDelivery(outcome string) {
	AlertDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordWebhookEvent increments the webhook event counter for a disposition.
func RecordWebhookEvent(disposition string) {
	WebhookEventsTotal.WithLabelValues(disposition).Inc()
}
