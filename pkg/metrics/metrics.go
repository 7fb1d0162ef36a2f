package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "files_read_total",
		Help: "Total number of candidate files processed, by outcome",
	}, []string{"status"})

	FileReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "file_read_duration_seconds",
		Help:    "Duration of single file reads",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	RowsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rows_read_total",
		Help: "Total number of rows read from data files",
	})

	DirectoryReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directory_read_duration_seconds",
		Help:    "Duration of resolve, read and concatenate stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of cache misses",
	})

	DatabaseQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "database_queries_total",
		Help: "Total number of database queries",
	}, []string{"query_type", "status"})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "database_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reader_active_workers",
		Help: "Number of reader workers currently processing a file",
	})
)

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}

func RecordDatabaseQuery(queryType, status string, duration float64) {
	DatabaseQueries.WithLabelValues(queryType, status).Inc()
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(duration)
}

func RecordFileRead(status string) {
	FilesRead.WithLabelValues(status).Inc()
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
