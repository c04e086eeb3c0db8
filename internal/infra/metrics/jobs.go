package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobLatencyMs, jobsStalledTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Total number of queue jobs processed, labeled by queue and status.",
	},
	[]string{"queue", "status"}, // 'completed', 'failed', 'retried'
)

var jobLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "job_latency_ms",
		Help:    "Job processing latency distribution in milliseconds.",
		Buckets: []float64{100, 500, 1000, 5000, 15000, 60000, 300000, 900000},
	},
	[]string{"queue"},
)

var jobsStalledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_stalled_total",
		Help: "Jobs requeued by the stalled-job reaper.",
	},
	[]string{"queue"},
)

func IncJob(queue, status string) {
	jobsProcessedTotal.WithLabelValues(norm(queue), norm(status)).Inc()
}

func ObserveJobLatency(queue string, latencyMs int) {
	jobLatencyMs.WithLabelValues(norm(queue)).Observe(float64(latencyMs))
}

func AddStalled(queue string, n int) {
	jobsStalledTotal.WithLabelValues(norm(queue)).Add(float64(n))
}
