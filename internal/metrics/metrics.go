package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks RFQs created.
	RFQsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rfq_created_total",
			Help: "Total number of RFQs created.",
		},
	)

	// Tracks quote submissions by result.
	QuotesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_quotes_submitted_total",
			Help: "Total number of quote submissions (by result).",
		},
		[]string{"result"}, // ok | rejected
	)

	// Tracks quote acceptance attempts by outcome.
	QuoteAcceptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_quote_accept_total",
			Help: "Total number of quote acceptance attempts (by outcome).",
		},
		[]string{"outcome"}, // won | lost_race | expired | invalid | error
	)

	// Measures the accept critical section.
	QuoteAcceptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rfq_quote_accept_duration_seconds",
			Help:    "Duration of the quote acceptance transaction in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms -> ~4s
		},
	)

	// Tracks presence transitions.
	PresenceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_presence_events_total",
			Help: "Total number of vendor presence transitions.",
		},
		[]string{"event"}, // online | offline | timeout
	)

	// Gauges vendors currently online under the staleness rule.
	OnlineVendors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vendor_online_count",
			Help: "Vendors currently online.",
		},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Gauges outbox rows awaiting dispatch, set by the dispatcher.
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Outbox events not yet dispatched.",
		},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_engine_errors_total",
			Help: "Count of engine-level errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time since start on the given histogram.
func ObserveDuration(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncPresenceEvent(event string) {
	PresenceEventsTotal.WithLabelValues(event).Inc()
}

func SetOnlineVendors(n int) {
	OnlineVendors.Set(float64(n))
}

func IncQuoteAccept(outcome string) {
	QuoteAcceptTotal.WithLabelValues(outcome).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
