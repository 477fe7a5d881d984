// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})

	ShippingQuotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shipping_quotes_total",
		Help:      "Shipping quotes computed by normalized method.",
	}, []string{"method"})

	EventPublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_event_publish_failures_total",
		Help:      "Order events that could not be published after commit.",
	}, []string{"event"})

	NotificationsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_enqueued_total",
		Help:      "Notification enqueue calls by channel and result (created|duplicate|error).",
	}, []string{"channel", "result"})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_deliveries_total",
		Help:      "Delivery attempts by channel and outcome.",
	}, []string{"channel", "outcome"})

	DeliveryLatencyMS = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_dispatch_duration_ms",
		Help:      "Provider dispatch latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"channel"})

	RateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_decisions_total",
		Help:      "Rate limiter decisions by action and result (allowed|denied|error).",
	}, []string{"action", "result"})
)

func init() {
	prometheus.MustRegister(
		CheckoutTotal,
		ShippingQuotes,
		EventPublishFailures,
		NotificationsEnqueued,
		DeliveriesTotal,
		DeliveryLatencyMS,
		RateLimitDecisions,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
