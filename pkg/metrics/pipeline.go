package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// DecisionsTotal counts resolved storno requests by outcome
	// (approved, rejected).
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storno",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Storno requests resolved, by outcome",
		},
		[]string{"outcome"},
	)

	// GatewayRefundsTotal counts payment gateway refund calls by result
	// (succeeded, failed, timeout).
	GatewayRefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storno",
			Subsystem: "gateway",
			Name:      "refunds_total",
			Help:      "Payment gateway refund calls, by result",
		},
		[]string{"result"},
	)

	GatewayRefundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "storno",
			Subsystem: "gateway",
			Name:      "refund_duration_seconds",
			Help:      "Payment gateway refund call latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
	)

	// ProviderAutoBlocksTotal counts providers suspended by the score floor.
	ProviderAutoBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storno",
			Subsystem: "provider",
			Name:      "auto_blocks_total",
			Help:      "Providers automatically blocked by the reliability score floor",
		},
	)
)

func init() {
	Registry.MustRegister(
		DecisionsTotal,
		GatewayRefundsTotal,
		GatewayRefundDuration,
		ProviderAutoBlocksTotal,
	)
}
