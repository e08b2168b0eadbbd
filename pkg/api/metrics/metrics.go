// Package metrics serves versiontower's Prometheus metrics over the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicholas-fedor/versiontower/pkg/metrics"
)

// Handler is an HTTP handle for serving metric data.
type Handler struct {
	Path    string
	Handle  http.Handler
	Metrics *metrics.Metrics
}

// New creates a handler exposing the default Prometheus registry.
func New() *Handler {
	return NewWithGatherer(prometheus.DefaultGatherer, metrics.Default())
}

// NewWithGatherer creates a handler exposing gatherer.
func NewWithGatherer(gatherer prometheus.Gatherer, m *metrics.Metrics) *Handler {
	return &Handler{
		Path:    "/v1/metrics",
		Handle:  promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		Metrics: m,
	}
}
