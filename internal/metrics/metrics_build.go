package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowpack_files_built",
			Help: "Number of source files written to the build directory",
		},
		[]string{"mount"},
	)

	FilesProxied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowpack_files_proxied",
			Help: "Number of proxy modules synthesized for non-module assets",
		},
	)

	UnresolvedImports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowpack_unresolved_imports",
			Help: "Number of import specifiers passed through unresolved",
		},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snowpack_build_duration_seconds",
			Help:    "Full build pipeline duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
	)

	LastBuildStart = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snowpack_last_build_start_timestamp",
			Help: "Unix timestamp of when the last build started",
		},
	)

	LastBuildEnd = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snowpack_last_build_end_timestamp",
			Help: "Unix timestamp of when the last build ended",
		},
	)
)
