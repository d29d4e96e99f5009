package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foodtruck",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	ordersPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "foodtruck",
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the ledger.",
		},
	)

	ordersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foodtruck",
			Name:      "orders_rejected_total",
			Help:      "Orders rejected by the ledger, by reason.",
		},
		[]string{"reason"},
	)

	treasuryBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "foodtruck",
			Name:      "treasury_balance",
			Help:      "Current treasury balance in smallest currency units.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, ordersPlaced, ordersRejected, treasuryBalance)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// OrderPlaced отмечает принятый заказ и актуализирует баланс казны.
func OrderPlaced(balance int64) {
	ordersPlaced.Inc()
	treasuryBalance.Set(float64(balance))
}

// OrderRejected increments the rejection counter for a reason label.
func OrderRejected(reason string) {
	ordersRejected.WithLabelValues(reason).Inc()
}

// SetTreasuryBalance updates the treasury gauge.
func SetTreasuryBalance(balance int64) {
	treasuryBalance.Set(float64(balance))
}
