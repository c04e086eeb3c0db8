package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(runsTotal, runOutliersFound, runChannelsAnalyzed) }

var runsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_runs_total",
		Help: "Analysis runs reaching a terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'cancelled'
)

var runOutliersFound = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "analysis_outliers_found",
		Help:    "Distribution of outlier counts per completed run.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	},
)

var runChannelsAnalyzed = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "analysis_channels_analyzed",
		Help:    "Distribution of channels scored per completed run.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	},
)

func IncRun(status string) { runsTotal.WithLabelValues(norm(status)).Inc() }

func ObserveRunSummary(outliers, channels int) {
	runOutliersFound.Observe(float64(outliers))
	runChannelsAnalyzed.Observe(float64(channels))
}
