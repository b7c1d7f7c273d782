package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopcore",
		Name:      "orders_created_total",
		Help:      "Orders created through checkout.",
	})

	CheckoutRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopcore",
		Name:      "checkout_rejected_total",
		Help:      "Checkouts that did not produce an order, by reason.",
	}, []string{"reason"})

	CartLinesReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shopcore",
		Name:      "cart_lines_reconciled_total",
		Help:      "Cart lines clamped down to available stock during reconciliation.",
	})
)
