package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "curator_build_info",
			Help: "Build information of the curator",
		},
		[]string{"version", "commit", "date"},
	)

	FilesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_files_processed_total",
			Help: "Landed files processed, by table and status",
		},
		[]string{"table", "status"},
	)

	RowsCuratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_rows_curated_total",
			Help: "Rows written to the curated zone, by table",
		},
		[]string{"table"},
	)

	ReconcileErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_reconcile_errors_total",
			Help: "Files rejected by schema reconciliation, by table and error kind",
		},
		[]string{"table", "kind"},
	)

	HistoryRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_history_rows_total",
			Help: "SCD2 history rows written, by table",
		},
		[]string{"table"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curator_run_duration_seconds",
			Help:    "Duration of a table curation run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"table"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_runs_total",
			Help: "Table curation runs, by table and status",
		},
		[]string{"table", "status"},
	)
)
