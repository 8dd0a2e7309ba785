// Package metrics exposes Prometheus collectors for the signer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stbtc_signer"

var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}

// Registry holds every signer collector plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

// Signer groups the withdrawal and chunk transport metrics.
var Signer = struct {
	Requests      *prometheus.CounterVec
	Duration      prometheus.Histogram
	ChunkFetches  *prometheus.CounterVec
	ChunksServed  *prometheus.CounterVec
	StoredPayload prometheus.Gauge
}{
	Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdraw_requests_total",
		Help:      "Withdrawal signing requests by outcome class.",
	}, []string{"result"}),
	Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "withdraw_duration_seconds",
		Help:      "Time from request parse to response, including user confirmation.",
		Buckets:   durationBuckets,
	}),
	ChunkFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_fetches_total",
		Help:      "Chunks fetched by the device side, by transport and result.",
	}, []string{"transport", "result"}),
	ChunksServed: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_served_total",
		Help:      "Chunk leaves served by the host side, by transport.",
	}, []string{"transport"}),
	StoredPayload: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_payloads",
		Help:      "Payload roots held in the local chunk store.",
	}),
}

func init() {
	Registry.MustRegister(
		Signer.Requests,
		Signer.Duration,
		Signer.ChunkFetches,
		Signer.ChunksServed,
		Signer.StoredPayload,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveWithdraw records one finished withdrawal request.
func ObserveWithdraw(result string, started time.Time) {
	Signer.Requests.WithLabelValues(result).Inc()
	Signer.Duration.Observe(time.Since(started).Seconds())
}

// ObserveFetch records one chunk fetch on the device side.
func ObserveFetch(transport string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Signer.ChunkFetches.WithLabelValues(transport, result).Inc()
}

// ObserveServed records one leaf served to a remote signer.
func ObserveServed(transport string) {
	Signer.ChunksServed.WithLabelValues(transport).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
