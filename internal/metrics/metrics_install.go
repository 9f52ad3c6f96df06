package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InstallFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowpack_install_failed",
			Help: "Number of times a package has failed to install",
		},
		[]string{"package"},
	)

	InstallCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowpack_install_count",
			Help: "Total number of completed web module installs",
		},
	)

	InstallSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowpack_install_skipped",
			Help: "Number of installs skipped because the lockfile was already up to date",
		},
	)

	InstallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snowpack_install_duration_seconds",
			Help:    "Web module install duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
	)

	PackagesInstalled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snowpack_packages_installed",
			Help: "Number of packages written by the last install",
		},
	)
)
