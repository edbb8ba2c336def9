package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout initiations by gateway, mode and outcome.
	CheckoutTotal *prometheus.CounterVec
	// GatewayLatency records order/intent creation latency in milliseconds.
	GatewayLatency *prometheus.HistogramVec
	// PaymentWebhookTotal counts inbound payment webhooks by gateway and outcome.
	PaymentWebhookTotal *prometheus.CounterVec
	// EscrowTransitionTotal counts ledger transition attempts.
	EscrowTransitionTotal *prometheus.CounterVec
	// EventNotifyTotal counts domain event fan-out results per notifier.
	EventNotifyTotal *prometheus.CounterVec
	// DBQueryDuration records Postgres statement latency in milliseconds.
	DBQueryDuration *prometheus.HistogramVec
	// SlotBookingTotal counts slot booking attempts and cancellations.
	SlotBookingTotal *prometheus.CounterVec
	// JobTransitionTotal counts marketplace job transitions.
	JobTransitionTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout initiations by outcome.",
		}, []string{"gateway", "mode", "result"}))
		GatewayLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_order_duration_ms",
			Help:      "Latency of gateway order/intent creation in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"gateway", "result"}))
		PaymentWebhookTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"gateway", "result"}))
		EscrowTransitionTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_transition_total",
			Help:      "Count of escrow status transition attempts.",
		}, []string{"from", "to", "result"}))
		EventNotifyTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_notify_total",
			Help:      "Count of domain event deliveries per notifier.",
		}, []string{"notifier", "result"}))
		DBQueryDuration = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_ms",
			Help:      "Latency of Postgres statements in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"operation", "result"}))
		SlotBookingTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_booking_total",
			Help:      "Count of slot booking operations by outcome.",
		}, []string{"action", "result"}))
		JobTransitionTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transition_total",
			Help:      "Count of marketplace job transitions by target status and outcome.",
		}, []string{"to", "result"}))
	})
}

// IncCheckout records a checkout outcome when domain metrics are registered.
func IncCheckout(gateway, mode, result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(gateway, mode, result).Inc()
	}
}

// ObserveGateway records the latency of a gateway call.
func ObserveGateway(gateway, result string, millis float64) {
	if GatewayLatency != nil {
		GatewayLatency.WithLabelValues(gateway, result).Observe(millis)
	}
}

// IncWebhook records a webhook outcome.
func IncWebhook(gateway, result string) {
	if PaymentWebhookTotal != nil {
		PaymentWebhookTotal.WithLabelValues(gateway, result).Inc()
	}
}

// IncTransition records an escrow transition attempt.
func IncTransition(from, to, result string) {
	if EscrowTransitionTotal != nil {
		EscrowTransitionTotal.WithLabelValues(from, to, result).Inc()
	}
}

// IncNotify records a notifier delivery result.
func IncNotify(notifier, result string) {
	if EventNotifyTotal != nil {
		EventNotifyTotal.WithLabelValues(notifier, result).Inc()
	}
}

// ObserveQuery records the latency of a database statement.
func ObserveQuery(operation, result string, millis float64) {
	if DBQueryDuration != nil {
		DBQueryDuration.WithLabelValues(operation, result).Observe(millis)
	}
}

// IncSlotBooking records a slot booking or cancellation outcome.
func IncSlotBooking(action, result string) {
	if SlotBookingTotal != nil {
		SlotBookingTotal.WithLabelValues(action, result).Inc()
	}
}

// IncJobTransition records a job transition outcome.
func IncJobTransition(to, result string) {
	if JobTransitionTotal != nil {
		JobTransitionTotal.WithLabelValues(to, result).Inc()
	}
}
