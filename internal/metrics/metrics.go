package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schoolattend"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	RecordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "attendance_records_written_total", Help: "Attendance records inserted",
	})
	SubmissionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "attendance_submissions_rejected_total", Help: "Rejected attendance submissions",
	}, []string{"reason"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_lookups_total", Help: "Cache lookups by result",
	}, []string{"cache", "result"})
	WorkerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "worker_events_total", Help: "Queue events handled by the worker",
	}, []string{"type", "result"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, RecordsWritten, SubmissionsRejected, CacheLookups, WorkerEvents, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// CacheResult records a hit or miss for the named cache.
func CacheResult(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
