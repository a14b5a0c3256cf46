// Package telemetry registers Prometheus metrics for registry operations,
// connectivity probes, and the HTTP surface.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "airmon_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	registryOps     *prometheus.CounterVec
	probeResults    *prometheus.CounterVec
	feedFetches     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
)

// Init registers all metrics with the default Prometheus registerer.
// Safe to call more than once; registration happens exactly once.
func Init() {
	registerOnce.Do(func() {
		registryOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "registry_operations_total",
				Help: "Total registry mutations by operation and result",
			},
			[]string{"operation", "result"},
		)
		probeResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "probe_results_total",
				Help: "Total ThingSpeak connectivity probes by result",
			},
			[]string{"result"},
		)
		feedFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_fetches_total",
				Help: "Total latest-feed fetches by result",
			},
			[]string{"result"},
		)
		requestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		)

		prometheus.MustRegister(
			registryOps,
			probeResults,
			feedFetches,
			requestDuration,
		)
	})
}

// RecordRegistryOp counts a registry mutation. No-op before Init.
func RecordRegistryOp(operation string, err error) {
	if registryOps == nil {
		return
	}
	registryOps.WithLabelValues(operation, resultLabel(err)).Inc()
}

// RecordProbe counts a connectivity probe outcome. No-op before Init.
func RecordProbe(success bool) {
	if probeResults == nil {
		return
	}
	result := resultError
	if success {
		result = resultSuccess
	}
	probeResults.WithLabelValues(result).Inc()
}

// RecordFeedFetch counts a latest-feed fetch outcome. No-op before Init.
func RecordFeedFetch(err error) {
	if feedFetches == nil {
		return
	}
	feedFetches.WithLabelValues(resultLabel(err)).Inc()
}

// Middleware observes request latency by method and status code.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		if requestDuration != nil {
			requestDuration.
				WithLabelValues(r.Method, strconv.Itoa(ww.Status())).
				Observe(time.Since(start).Seconds())
		}
	})
}

func resultLabel(err error) string {
	if err == nil {
		return resultSuccess
	}
	return resultError
}
