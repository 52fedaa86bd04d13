package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curator"

// Collector holds the curator Prometheus metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Pipeline metrics
	Outcomes     *prometheus.CounterVec
	StageSeconds *prometheus.HistogramVec

	// Extractor metrics
	ExtractorRequests *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter

	// Registry metrics
	RegistryWrites *prometheus.CounterVec
}

// New creates a collector with its own registry
func New() *Collector {
	registry := prometheus.NewRegistry()

	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Pipeline outcomes by status and rejection reason",
		},
		[]string{"status", "reason"},
	)

	stageSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_seconds",
			Help:      "Time spent in each pipeline state",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	extractorRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "requests_total",
			Help:      "Extractor calls by result",
		},
		[]string{"result"},
	)

	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "cache_hits_total",
			Help:      "Extraction cache hits",
		},
	)

	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "cache_misses_total",
			Help:      "Extraction cache misses",
		},
	)

	registryWrites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "writes_total",
			Help:      "Committed registry writes by operation",
		},
		[]string{"op"},
	)

	registry.MustRegister(
		outcomes,
		stageSeconds,
		extractorRequests,
		cacheHits,
		cacheMisses,
		registryWrites,
	)

	return &Collector{
		registry:          registry,
		Outcomes:          outcomes,
		StageSeconds:      stageSeconds,
		ExtractorRequests: extractorRequests,
		CacheHits:         cacheHits,
		CacheMisses:       cacheMisses,
		RegistryWrites:    registryWrites,
	}
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordOutcome counts one pipeline outcome
func (c *Collector) RecordOutcome(status, reason string) {
	if c == nil {
		return
	}
	c.Outcomes.WithLabelValues(status, reason).Inc()
}

// ObserveStage records time spent in a pipeline state
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordExtraction counts one extractor call by result ("ok" or a reason)
func (c *Collector) RecordExtraction(result string) {
	if c == nil {
		return
	}
	c.ExtractorRequests.WithLabelValues(result).Inc()
}

// RecordCache counts an extraction cache lookup
func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHits.Inc()
	} else {
		c.CacheMisses.Inc()
	}
}

// RecordWrite counts a committed registry write
func (c *Collector) RecordWrite(op string) {
	if c == nil {
		return
	}
	c.RegistryWrites.WithLabelValues(op).Inc()
}
