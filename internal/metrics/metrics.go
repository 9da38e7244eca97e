package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snapshot metrics - Track the state copy
var (
	SnapshotEntriesCopied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgermeta_snapshot_entries_copied_total",
		Help: "Total number of ledger state objects written to the snapshot",
	})

	SnapshotChunksCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgermeta_snapshot_chunks_committed_total",
		Help: "Total number of feed chunks committed with their journal entry",
	})

	SnapshotLedger = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgermeta_snapshot_ledger_index",
		Help: "Ledger index the current snapshot is built from",
	})

	SnapshotComplete = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgermeta_snapshot_complete",
		Help: "1 when the live snapshot has a completion entry",
	})
)

// Throughput metrics - Track processing volume
var (
	LedgersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgermeta_ledgers_processed_total",
			Help: "Total number of ledgers applied by task",
		},
		[]string{"task"},
	)

	TransactionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgermeta_transactions_processed_total",
		Help: "Total number of transactions applied",
	})

	ExchangesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgermeta_exchanges_saved_total",
		Help: "Total number of exchanges derived from offer fills",
	})

	StateDeltasApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgermeta_state_deltas_applied_total",
			Help: "Total number of live state changes applied by node type",
		},
		[]string{"node_type"},
	)
)

// Performance metrics - Track processing speed and latency
var (
	LedgerProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledgermeta_ledger_processing_duration_seconds",
		Help:    "Time taken to apply a single ledger",
		Buckets: prometheus.DefBuckets,
	})

	NodeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgermeta_node_request_duration_seconds",
			Help:    "Latency of upstream node requests by command",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

// State metrics - Track current system state
var (
	HeadLedger = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgermeta_head_ledger",
			Help: "Last ledger applied by task",
		},
		[]string{"task"},
	)

	HealthyNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgermeta_healthy_nodes",
		Help: "Number of upstream nodes not in cooldown",
	})
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgermeta_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)

	NodeFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgermeta_node_failovers_total",
		Help: "Requests that moved to another node after a failure",
	})

	FeedNodeSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgermeta_feed_node_switches_total",
		Help: "Feed pages served by a different node than the previous page",
	})
)

// Pipeline metrics - Track parallel fetching
var (
	PipelineWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgermeta_pipeline_worker_count",
		Help: "Number of active pipeline fetch workers",
	})

	PipelineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgermeta_pipeline_queue_depth",
		Help: "Number of fetched ledgers waiting to be applied in order",
	})

	PipelineLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgermeta_pipeline_lag",
		Help: "Number of ledgers the sync head is behind the latest validated ledger",
	})
)
