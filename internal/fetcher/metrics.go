package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockfetch_blocks_fetched_total",
			Help: "Total number of blocks fetched by operation",
		},
		[]string{"operation"},
	)

	logsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockfetch_logs_merged_total",
			Help: "Total number of logs merged into their owning blocks",
		},
		[]string{"operation"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockfetch_fetch_duration_seconds",
			Help:    "Duration of batched block/log fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	consistencyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockfetch_consistency_failures_total",
			Help: "Total number of block/log hash mismatches",
		},
	)
)

func blocksFetchedInc(operation string, count int) {
	blocksFetched.WithLabelValues(operation).Add(float64(count))
}

func logsMergedInc(operation string, count int) {
	logsMerged.WithLabelValues(operation).Add(float64(count))
}

func fetchDurationLog(operation string, duration time.Duration) {
	fetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func consistencyFailureInc() {
	consistencyFailures.Inc()
}
