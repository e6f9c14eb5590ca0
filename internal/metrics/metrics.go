// Package metrics exposes export progress as prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Export counts the work done by an export run. A nil *Export is valid and records nothing.
type Export struct {
	registry *prometheus.Registry

	ImagesExported  prometheus.Counter
	ImagesSkipped   prometheus.Counter
	ObjectsExported prometheus.Counter
	BuildSeconds    prometheus.Histogram
}

// NewExport creates the export metrics on a private registry.
func NewExport() *Export {
	m := &Export{
		registry: prometheus.NewRegistry(),
		ImagesExported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cocodet_images_exported_total",
			Help: "Images written to the export output",
		}),
		ImagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cocodet_images_skipped_total",
			Help: "Images that failed to load or convert",
		}),
		ObjectsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cocodet_objects_exported_total",
			Help: "Object instances written to the export output",
		}),
		BuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cocodet_sample_build_seconds",
			Help:    "Time to decode an image and build its target",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	m.registry.MustRegister(m.ImagesExported, m.ImagesSkipped, m.ObjectsExported, m.BuildSeconds)
	return m
}

// Exported records one exported image with numObjects instances.
func (m *Export) Exported(numObjects int, took time.Duration) {
	if m == nil {
		return
	}
	m.ImagesExported.Inc()
	m.ObjectsExported.Add(float64(numObjects))
	m.BuildSeconds.Observe(took.Seconds())
}

// Skipped records one image that was not exported.
func (m *Export) Skipped() {
	if m == nil {
		return
	}
	m.ImagesSkipped.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Export) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve serves the metrics under /metrics on addr. It blocks like http.ListenAndServe.
func (m *Export) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
