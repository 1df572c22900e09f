package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_validations_total",
		Help: "Promo code validations by outcome.",
	}, []string{"outcome"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_redemptions_total",
		Help: "Promo code redemption attempts by outcome.",
	}, []string{"outcome"})

	Reversals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promo_reversals_total",
		Help: "Redemptions reversed on order cancellation.",
	})

	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_store_failures_total",
		Help: "Store errors surfaced to callers, by operation.",
	}, []string{"op"})
)

// Outcome labels. Business rejections use the reject reason string.
const (
	OutcomeAccepted = "accepted"
)
