// Package metrics is marketwatch's Prometheus registry, generalized from
// rnts08-eth-watchtower's src/metrics package: same NewXMetrics/RegisterMetrics
// split, metric families renamed for the trade-surveillance domain.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge/histogram marketwatch exposes.
type Metrics struct {
	CandidatesIngested   *prometheus.CounterVec // labels: chain, source
	GateRejections       *prometheus.CounterVec // labels: chain, reason
	MarketsActive        prometheus.Gauge
	MarketsPending       prometheus.Gauge
	SubscriptionSlotsUsed prometheus.Gauge
	TradesProcessed      *prometheus.CounterVec // labels: chain
	TradesDropped        *prometheus.CounterVec // labels: chain, reason
	AlertsEmitted        *prometheus.CounterVec // labels: verdict
	AggregatorLatency    prometheus.Histogram
	AggregatorFailures   *prometheus.CounterVec // labels: endpoint
	RPCLatency           *prometheus.HistogramVec // labels: chain
	RPCCircuitBreakerTrips *prometheus.CounterVec // labels: chain, url
	BytecodeAnalysisFlags *prometheus.CounterVec // labels: flag
	BytecodeAnalysisDuration prometheus.Histogram
	DedupHits            prometheus.Counter
}

// New constructs every metric, unregistered.
func New() *Metrics {
	return &Metrics{
		CandidatesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_candidates_ingested_total",
			Help: "Total number of market candidates observed by ingress, by chain and source.",
		}, []string{"chain", "source"}),
		GateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_gate_rejections_total",
			Help: "Total number of markets rejected by the gate pipeline, by chain and reason.",
		}, []string{"chain", "reason"}),
		MarketsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_markets_active",
			Help: "Current number of markets in the active status.",
		}),
		MarketsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_markets_pending",
			Help: "Current number of markets in the pending status.",
		}),
		SubscriptionSlotsUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_subscription_slots_used",
			Help: "Current number of subscription slots consumed against MAX_ACTIVE_MARKETS.",
		}),
		TradesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_trades_processed_total",
			Help: "Total number of trade events recorded into the window store, by chain.",
		}, []string{"chain"}),
		TradesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_trades_dropped_total",
			Help: "Total number of trade events dropped before recording, by chain and reason.",
		}, []string{"chain", "reason"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_alerts_emitted_total",
			Help: "Total number of alerts dispatched to the notifier, by verdict.",
		}, []string{"verdict"}),
		AggregatorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_aggregator_latency_seconds",
			Help:    "Latency of market-aggregator HTTP calls.",
			Buckets: prometheus.DefBuckets,
		}),
		AggregatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_aggregator_failures_total",
			Help: "Total number of failed market-aggregator HTTP calls, by endpoint.",
		}, []string{"endpoint"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketwatch_rpc_latency_seconds",
			Help:    "Latency of chain-node read calls, by chain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
		RPCCircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_rpc_circuit_breaker_trips_total",
			Help: "Total number of times an RPC endpoint's circuit breaker has tripped.",
		}, []string{"chain", "url"}),
		BytecodeAnalysisFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_bytecode_analysis_flags_total",
			Help: "Total number of times a bytecode risk flag has been detected during admission.",
		}, []string{"flag"}),
		BytecodeAnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_bytecode_analysis_duration_seconds",
			Help:    "Time taken to statically analyze pool/token bytecode.",
			Buckets: prometheus.DefBuckets,
		}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_trending_dedup_hits_total",
			Help: "Total number of trending candidates suppressed by the dedup set.",
		}),
	}
}

// Register registers every metric against the default registry, mirroring
// the teacher's RegisterMetrics.
func Register(m *Metrics) {
	prometheus.MustRegister(
		m.CandidatesIngested,
		m.GateRejections,
		m.MarketsActive,
		m.MarketsPending,
		m.SubscriptionSlotsUsed,
		m.TradesProcessed,
		m.TradesDropped,
		m.AlertsEmitted,
		m.AggregatorLatency,
		m.AggregatorFailures,
		m.RPCLatency,
		m.RPCCircuitBreakerTrips,
		m.BytecodeAnalysisFlags,
		m.BytecodeAnalysisDuration,
		m.DedupHits,
	)
}
