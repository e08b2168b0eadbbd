package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Cache lookup outcomes used as the "result" label.
const (
	CacheHit         = "hit"
	CacheNegativeHit = "negative_hit"
	CacheMiss        = "miss"
	CacheStale       = "stale"
)

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// Metric holds data points from a check cycle.
type Metric struct {
	Scanned int // Number of images checked.
	Fresh   int // Number of images whose tag still points at the running image.
	Stale   int // Number of images with a newer image available.
	Unknown int // Number of images the registry did not know.
	Failed  int // Number of images whose resolution failed.
}

// Metrics handles processing and exposing check metrics.
type Metrics struct {
	channel          chan *Metric           // Channel for queuing metrics.
	scanned          prometheus.Gauge       // Gauge for checked images.
	fresh            prometheus.Gauge       // Gauge for up to date images.
	stale            prometheus.Gauge       // Gauge for outdated images.
	unknown          prometheus.Gauge       // Gauge for images without registry data.
	failed           prometheus.Gauge       // Gauge for failed resolutions.
	total            prometheus.Counter     // Counter for total cycles.
	skipped          prometheus.Counter     // Counter for skipped cycles.
	dropped          prometheus.Counter     // Counter for dropped metrics.
	cacheLookups     *prometheus.CounterVec // Manifest cache lookups by result.
	registryRequests *prometheus.CounterVec // Registry requests by endpoint and status code.
	stopCh           chan struct{}          // Channel for shutdown signaling.
	shutdownOnce     sync.Once              // Ensures shutdown is called only once.
	//nolint:containedctx
	ctx    context.Context    // Context for cancellation.
	cancel context.CancelFunc // Cancel function for the context.
}

// NewWithRegistry creates a new Metrics handler with a custom Prometheus registry.
//
// Parameters:
//   - registry: Prometheus registerer to use for metric registration.
//
// Returns:
//   - (*Metrics, error): Metrics handler with Prometheus metrics and goroutine, or an error if registration fails.
func NewWithRegistry(registry prometheus.Registerer) (*Metrics, error) {
	// channelBufferSize sets the metrics channel capacity.
	const channelBufferSize = 10

	ctx, cancel := context.WithCancel(context.Background())

	metrics := &Metrics{
		scanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versiontower_images_scanned",
			Help: "Number of images checked during the last cycle",
		}),
		fresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versiontower_images_fresh",
			Help: "Number of images up to date with their registry tag during the last cycle",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versiontower_images_stale",
			Help: "Number of images with a newer image behind their tag during the last cycle",
		}),
		unknown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versiontower_images_unknown",
			Help: "Number of images without registry data during the last cycle",
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versiontower_images_failed",
			Help: "Number of images whose version resolution failed during the last cycle",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versiontower_cycles_total",
			Help: "Number of check cycles since versiontower started",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versiontower_cycles_skipped_total",
			Help: "Number of skipped check cycles since versiontower started",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versiontower_metrics_dropped_total",
			Help: "Number of metrics dropped due to full channel",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "versiontower_manifest_cache_lookups_total",
			Help: "Manifest cache lookups by result",
		}, []string{"result"}),
		registryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "versiontower_registry_requests_total",
			Help: "Registry requests by endpoint and response code",
		}, []string{"endpoint", "code"}),
		channel: make(chan *Metric, channelBufferSize),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	metricsList := []prometheus.Collector{
		metrics.scanned,
		metrics.fresh,
		metrics.stale,
		metrics.unknown,
		metrics.failed,
		metrics.total,
		metrics.skipped,
		metrics.dropped,
		metrics.cacheLookups,
		metrics.registryRequests,
	}
	for _, m := range metricsList {
		if err := registry.Register(m); err != nil {
			cancel()

			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	go metrics.HandleUpdate()

	return metrics, nil
}

// NewMetric creates a Metric from a check report.
//
// Parameters:
//   - report: Check report from types.Report.
//
// Returns:
//   - *Metric: New metric instance.
func NewMetric(report types.Report) *Metric {
	if report == nil {
		panic("NewMetric: report is nil")
	}

	return &Metric{
		Scanned: len(report.Scanned()),
		Fresh:   len(report.Fresh()),
		Stale:   len(report.Stale()),
		Unknown: len(report.Unknown()),
		Failed:  len(report.Failed()),
	}
}

// QueueIsEmpty checks if the metrics channel is empty.
func (m *Metrics) QueueIsEmpty() bool {
	return len(m.channel) == 0
}

// Register attempts to enqueue a metric for processing.
// If the channel is full, the metric is dropped and the dropped counter is incremented.
func (m *Metrics) Register(metric *Metric) {
	select {
	case m.channel <- metric:
	default:
		m.dropped.Inc()
	}
}

// Default initializes or returns the singleton Metrics handler. It panics on registration failure, such as duplicate registration against the default registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		var err error

		metrics, err = NewWithRegistry(prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
	})

	return metrics
}

// RegisterScan enqueues a cycle metric, or a skipped cycle when metric is nil.
func (m *Metrics) RegisterScan(metric *Metric) {
	m.Register(metric)
}

// CacheLookup counts a manifest cache lookup with the given result.
func (m *Metrics) CacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RegistryRequest counts a request against a registry endpoint.
// A status code of zero records a transport failure.
func (m *Metrics) RegistryRequest(endpoint string, statusCode int) {
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}

	m.registryRequests.WithLabelValues(endpoint, code).Inc()
}

// Shutdown gracefully stops the metrics processing goroutine.
// This method is idempotent and can be called multiple times safely.
func (m *Metrics) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		m.cancel()
	})
}

// HandleUpdate processes metrics from the channel.
func (m *Metrics) HandleUpdate() {
	for {
		select {
		case change, ok := <-m.channel:
			if !ok {
				return
			}

			if change == nil {
				// Cycle was skipped because another one was still running.
				m.total.Inc()
				m.skipped.Inc()
				m.scanned.Set(0)
				m.fresh.Set(0)
				m.stale.Set(0)
				m.unknown.Set(0)
				m.failed.Set(0)

				continue
			}

			m.total.Inc()
			m.scanned.Set(float64(change.Scanned))
			m.fresh.Set(float64(change.Fresh))
			m.stale.Set(float64(change.Stale))
			m.unknown.Set(float64(change.Unknown))
			m.failed.Set(float64(change.Failed))
		case <-m.stopCh:
			return
		case <-m.ctx.Done():
			return
		}
	}
}
