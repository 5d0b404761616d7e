package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle, provider and RPC metrics. Provider level series are partitioned by
// chain id and provider name.

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrpnode",
		Subsystem: "coordinator",
		Name:      "cycles_total",
		Help:      "Total coordinator cycles by outcome",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rrpnode",
		Subsystem: "coordinator",
		Name:      "cycle_duration_seconds",
		Help:      "Coordinator cycle duration",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrpnode",
		Subsystem: "provider",
		Name:      "errors_total",
		Help:      "Providers whose cycle failed and kept their previous state",
	}, []string{"chain_id", "provider"})

	RequestsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rrpnode",
		Subsystem: "provider",
		Name:      "requests",
		Help:      "Requests at the end of the last cycle by type and status",
	}, []string{"chain_id", "provider", "type", "status"})

	GasPriceWei = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rrpnode",
		Subsystem: "provider",
		Name:      "gas_price_wei",
		Help:      "Effective gas price of the last resolved gas target",
	}, []string{"chain_id", "provider"})

	GasTargetMissing = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrpnode",
		Subsystem: "provider",
		Name:      "gas_target_missing_total",
		Help:      "Cycles skipped because no gas target could be resolved",
	}, []string{"chain_id", "provider"})

	WorkerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrpnode",
		Subsystem: "worker",
		Name:      "invocations_total",
		Help:      "Worker function invocations by outcome",
	}, []string{"cloud", "function", "outcome"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrpnode",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Chain RPC calls by method and status",
	}, []string{"chain_id", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrpnode",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "RPC calls delayed by the rate limiter",
	}, []string{"chain_id"})
)
