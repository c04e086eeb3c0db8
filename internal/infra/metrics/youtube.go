package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ytCallsTotal, ytCacheLookups, ytCallLatencyMs, ytQuotaBlocked) }

var ytCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "youtube_calls_total",
		Help: "External YouTube API calls by endpoint and outcome.",
	},
	[]string{"endpoint", "outcome"}, // 'ok', 'error'
)

var ytCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "youtube_cache_lookups_total",
		Help: "Cache lookups of the external fetcher by call type and result.",
	},
	[]string{"call", "result"}, // 'hit', 'miss'
)

var ytCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "youtube_call_latency_ms",
		Help:    "External call latency distribution in milliseconds.",
		Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"endpoint"},
)

var ytQuotaBlocked = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "youtube_quota_blocked_total",
		Help: "Calls refused because the daily unit budget was spent.",
	},
)

func ObserveYouTubeCall(endpoint string, latencyMs int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ytCallsTotal.WithLabelValues(norm(endpoint), outcome).Inc()
	ytCallLatencyMs.WithLabelValues(norm(endpoint)).Observe(float64(latencyMs))
}

func IncCacheLookup(call string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ytCacheLookups.WithLabelValues(norm(call), result).Inc()
}

func IncQuotaBlocked() { ytQuotaBlocked.Inc() }
