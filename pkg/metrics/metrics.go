package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracklake_etl_build_info",
			Help: "Build information of the TrackLake ETL",
		},
		[]string{"version", "commit", "date"},
	)

	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklake_etl_rows_read_total",
			Help: "Rows read per input source",
		},
		[]string{"source"},
	)

	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklake_etl_rows_written_total",
			Help: "Rows written per warehouse table",
		},
		[]string{"table"},
	)

	SongplaysUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklake_etl_songplays_unmatched_total",
			Help: "Playback events whose song title had no catalog match",
		},
	)

	SongplayMatchRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracklake_etl_songplay_match_rate",
			Help: "Fraction of playback events that matched a catalog title in the last run",
		},
	)
)
