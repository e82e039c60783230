package service

import "github.com/prometheus/client_golang/prometheus"

var (
	checkoutAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableorder_checkout_attempts_total",
			Help: "Checkout attempts that reached an outcome, by payment method and outcome",
		},
		[]string{"method", "outcome"},
	)

	checkoutStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tableorder_checkout_started_total",
			Help: "Checkout attempts begun",
		},
	)

	checkoutFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableorder_checkout_failures_total",
			Help: "Checkout failures by kind",
		},
		[]string{"kind"},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tableorder_checkout_poll_attempts",
			Help:    "Status polls needed to resolve an electronic payment",
			Buckets: []float64{1, 2, 3, 5, 10, 15, 20, 30, 60},
		},
	)

	confirmationTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tableorder_checkout_confirmation_timeouts_total",
			Help: "Electronic checkouts completed before their order number was known",
		},
	)

	cartOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableorder_cart_operations_total",
			Help: "Cart mutations by operation",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		checkoutAttemptsTotal,
		checkoutStartedTotal,
		checkoutFailuresTotal,
		pollAttempts,
		confirmationTimeoutsTotal,
		cartOperationsTotal,
	)
}
