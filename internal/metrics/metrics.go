package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transitions counts lifecycle operations by outcome (ok, rejected, error).
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "luggo",
		Name:      "lifecycle_operations_total",
		Help:      "Lifecycle operations by operation and result.",
	}, []string{"op", "result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "luggo",
		Name:      "notifications_total",
		Help:      "Notification deliveries by type and result.",
	}, []string{"type", "result"})

	NotificationQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "luggo",
		Name:      "notification_queue_dropped_total",
		Help:      "Domain events dropped because the notification queue was full.",
	})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "luggo",
		Name:      "webhook_deliveries_total",
		Help:      "Outbound bot webhook deliveries by result.",
	}, []string{"result"})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "luggo",
		Name:      "live_connections",
		Help:      "Open websocket connections.",
	})

	SubscriptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "luggo",
		Name:      "subscriptions_expired_total",
		Help:      "Subscriptions moved to expired by the expiry job.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
