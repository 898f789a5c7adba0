// Package metrics exposes Prometheus instrumentation for every FindIt
// subsystem, grouped the way the teacher application grouped its own
// (HTTP/DB/indexer/thumbnail) metric blocks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage (C3/C4) metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_db_queries_total",
			Help: "Total number of database queries, labeled by db kind and operation",
		},
		[]string{"db", "operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "findit_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"db", "operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "findit_db_transaction_duration_seconds",
			Help:    "Duration of committed/rolled-back transactions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"db", "outcome"},
	)

	MigrationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_migrations_applied_total",
			Help: "Total number of migration steps applied",
		},
		[]string{"db", "step"},
	)
)

// Sync engine (C5) metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_sync_runs_total",
			Help: "Total number of sync runs per folder",
		},
		[]string{"status"},
	)

	SyncRowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_sync_rows_upserted_total",
			Help: "Total number of rows upserted into the global DB by sync",
		},
		[]string{"table"},
	)

	SyncWatermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "findit_sync_watermark",
			Help: "Last-synced rowid watermark per folder and table",
		},
		[]string{"folder", "table"},
	)
)

// Decoder routing (C1/C2) metrics
var (
	DecoderProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_decoder_probe_total",
			Help: "Total number of decoder probes, labeled by decoder and outcome",
		},
		[]string{"decoder", "outcome"},
	)

	DecoderSelected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_decoder_selected_total",
			Help: "Total number of times a decoder was selected to handle a path",
		},
		[]string{"decoder"},
	)

	SceneDetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "findit_scene_detection_duration_seconds",
			Help:    "Duration of scene detection per video",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	KeyframesExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "findit_keyframes_extracted_total",
			Help: "Total number of keyframe JPEGs extracted",
		},
	)
)

// Rate limiter / network monitor (C7) metrics
var (
	RateLimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "findit_rate_limiter_wait_seconds",
			Help:    "Time spent waiting inside RateLimiter.acquire()",
			Buckets: []float64{0, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
	)

	RateLimiterBackoffSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "findit_rate_limiter_backoff_seconds",
			Help: "Current backoff duration applied after a reported rate limit",
		},
	)

	RateLimitReportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "findit_rate_limit_reports_total",
			Help: "Total number of report_rate_limit() calls",
		},
	)

	NetworkStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "findit_network_status",
			Help: "Network status: 0=disconnected, 1=connected, 2=unknown",
		},
	)
)

// Layered indexer (C8) metrics
var (
	IndexerLayerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "findit_indexer_layer_duration_seconds",
			Help:    "Duration of a single indexer layer for one video",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"layer"},
	)

	IndexerVideosProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_indexer_videos_processed_total",
			Help: "Total number of videos processed by the layered indexer",
		},
		[]string{"outcome"},
	)

	IndexerClipsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "findit_indexer_clips_committed_total",
			Help: "Total number of per-clip commits made by any layer",
		},
	)
)

// Scheduler (C9) metrics
var (
	SchedulerActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "findit_scheduler_active_tasks",
			Help: "Number of videos currently being indexed concurrently",
		},
	)

	SchedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "findit_scheduler_queue_depth",
			Help: "Number of videos queued but not yet started",
		},
	)
)

// Search engine (C10/C11) metrics
var (
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_search_queries_total",
			Help: "Total number of search queries, labeled by mode",
		},
		[]string{"mode"},
	)

	SearchQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "findit_search_query_duration_seconds",
			Help:    "Search query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SearchResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "findit_search_results_returned",
			Help:    "Number of results returned per query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)
)

// AppInfo reports static build information, same shape as the teacher's.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "findit_app_info",
		Help: "Application build information",
	},
	[]string{"version", "go_version"},
)

func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}
