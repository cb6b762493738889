package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement engine.
type Metrics struct {
	// Core processing
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreStateHashDur   prometheus.Histogram
	CoreSequence       prometheus.Gauge

	// MPC round trips
	MPCRequestsQueued   *prometheus.CounterVec
	MPCCallbackLag      *prometheus.HistogramVec
	MPCStaleCallbacks   prometheus.Counter
	MPCForceClearsTotal prometheus.Counter

	// Settlement lifecycle
	SettlementsInitiated prometheus.Counter
	SettlementsTerminal  *prometheus.CounterVec
	SettlementExpiries   prometheus.Counter
	ManualInterventions  prometheus.Counter

	// Liquidation / deleverage
	LiquidationBatches   *prometheus.CounterVec
	LiquidationsExecuted *prometheus.CounterVec
	ADLExecutions        prometheus.Counter
	InsuranceFundBalance *prometheus.GaugeVec

	// Channel and backpressure
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PersistBackpressure prometheus.Counter

	// Idempotency and ordering
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// Persistence
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// Snapshot and replay
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// Query API
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	roundTripBuckets := []float64{
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_core_events_applied_total",
			Help: "Events successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_core_events_rejected_total",
			Help: "Events rejected (dedup, gap, validation)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadow_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shadow_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shadow_core_sequence",
			Help: "Current global sequence number",
		}),

		MPCRequestsQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_mpc_requests_queued_total",
			Help: "Computation requests queued to the collaborator set",
		}, []string{"op"}),

		MPCCallbackLag: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadow_mpc_callback_lag_seconds",
			Help:    "Request queue to callback application",
			Buckets: roundTripBuckets,
		}, []string{"op"}),

		MPCStaleCallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_mpc_stale_callbacks_total",
			Help: "Callbacks rejected for a mismatched or cleared request id",
		}),

		MPCForceClearsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_mpc_force_clears_total",
			Help: "Stale pending markers cleared by the recovery path",
		}),

		SettlementsInitiated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_settlements_initiated_total",
			Help: "Two-phase settlements opened",
		}),

		SettlementsTerminal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_settlements_terminal_total",
			Help: "Settlements reaching a terminal status",
		}, []string{"status"}),

		SettlementExpiries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_settlement_expiries_total",
			Help: "Settlements past their deadline",
		}),

		ManualInterventions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_manual_interventions_total",
			Help: "Settlements flagged for operator intervention",
		}),

		LiquidationBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_liquidation_batches_total",
			Help: "Batched under-water checks submitted",
		}, []string{"market"}),

		LiquidationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_liquidations_executed_total",
			Help: "Liquidation closes completed",
		}, []string{"market"}),

		ADLExecutions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_adl_executions_total",
			Help: "Auto-deleverage absorptions applied",
		}),

		InsuranceFundBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shadow_insurance_fund_balance",
			Help: "Insurance fund balance per market, quote scale",
		}, []string{"market"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shadow_channel_size",
			Help: "Current channel occupancy",
		}, []string{"channel"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shadow_channel_capacity",
			Help: "Channel capacity",
		}, []string{"channel"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_projection_drops_total",
			Help: "Projection outputs dropped on overflow",
		}, []string{"channel"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_persist_backpressure_total",
			Help: "Core blocked on the persistence channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_idempotency_duplicates_total",
			Help: "Duplicate events detected",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shadow_dedup_lru_size",
			Help: "Current idempotency LRU entry count",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_dedup_lru_evictions_total",
			Help: "Idempotency LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shadow_dedup_tier2_duration_seconds",
			Help:    "Database idempotency lookup duration",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),

		EventSequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_event_sequence_gap_total",
			Help: "Sequence gaps detected per partition",
		}, []string{"partition"}),

		EventOutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_event_out_of_order_total",
			Help: "Out-of-order events rejected per partition",
		}, []string{"partition"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_persist_events_written_total",
			Help: "Event envelopes written to the log",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shadow_persist_batch_size",
			Help:    "Events per persistence batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shadow_persist_batch_duration_seconds",
			Help:    "Persistence batch write duration",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_persist_errors_total",
			Help: "Persistence write errors",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_persist_retries_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shadow_persist_last_sequence",
			Help: "Highest sequence durably written",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_snapshot_taken_total",
			Help: "State snapshots written",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shadow_snapshot_duration_seconds",
			Help:    "Snapshot serialization and write duration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shadow_snapshot_last_sequence",
			Help: "Sequence of the latest snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shadow_replay_events_total",
			Help: "Events re-applied during startup replay",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shadow_replay_duration_seconds",
			Help: "Duration of the last startup replay",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shadow_query_duration_seconds",
			Help:    "Query API request duration",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shadow_query_errors_total",
			Help: "Query API errors",
		}, []string{"endpoint", "kind"}),
	}
}
