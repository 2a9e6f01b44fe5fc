// Package metrics exposes Prometheus instrumentation for index construction
// and sampling throughput.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// BuildSeconds tracks index construction latency per index kind.
	BuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rangesampler",
		Name:      "index_build_seconds",
		Help:      "Index construction latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"index"})

	// IndexBytes reports the resident footprint of the last built index.
	IndexBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rangesampler",
		Name:      "index_bytes",
		Help:      "Resident footprint of the last built index in bytes.",
	}, []string{"index"})

	// SamplesTotal counts accepted samples per sampling method.
	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangesampler",
		Name:      "samples_total",
		Help:      "Accepted samples drawn, by method.",
	}, []string{"method"})

	// RejectionsTotal counts rejected draws per sampling method.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangesampler",
		Name:      "rejections_total",
		Help:      "Rejected draws, by method.",
	}, []string{"method"})

	// ThroughputOps reports the ops/s achieved by the last timed run.
	ThroughputOps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rangesampler",
		Name:      "throughput_ops",
		Help:      "Samples per second achieved by the last timed sampling run.",
	}, []string{"method"})
)

// ObserveBuild records one index build.
func ObserveBuild(index string, elapsed time.Duration, bytes int) {
	BuildSeconds.WithLabelValues(index).Observe(elapsed.Seconds())
	IndexBytes.WithLabelValues(index).Set(float64(bytes))
}

// Serve exposes the default registry on addr/metrics in the background.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
}
