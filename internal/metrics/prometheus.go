package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for quasar metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter

	loadsTotal    *prometheus.CounterVec
	preloadsTotal *prometheus.CounterVec
	timeoutsTotal prometheus.Counter

	loadDuration prometheus.Histogram
}

// Default histogram buckets for load duration (in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var (
	promMu      sync.RWMutex
	promMetrics *PrometheusMetrics
)

// InitPrometheus initializes the Prometheus metrics subsystem. Until it is
// called, the prom* forwarding funcs are no-ops.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total file cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total file cache misses",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total entries evicted by LRU/size pressure",
		}),

		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total foreground file loads",
			},
			[]string{"source", "status"},
		),
		preloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preloads_total",
				Help:      "Total speculative preloads",
			},
			[]string{"status"},
		),
		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_timeouts_total",
			Help:      "Total loads that hit the fetch deadline",
		}),

		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_ms",
			Help:      "Foreground load duration in milliseconds",
			Buckets:   buckets,
		}),
	}

	registry.MustRegister(
		pm.cacheHits, pm.cacheMisses, pm.cacheEvictions,
		pm.loadsTotal, pm.preloadsTotal, pm.timeoutsTotal,
		pm.loadDuration,
	)

	promMu.Lock()
	promMetrics = pm
	promMu.Unlock()
}

// Handler returns the /metrics HTTP handler, or nil when Prometheus is not
// initialized.
func Handler() http.Handler {
	promMu.RLock()
	defer promMu.RUnlock()
	if promMetrics == nil {
		return nil
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

func promGet() *PrometheusMetrics {
	promMu.RLock()
	defer promMu.RUnlock()
	return promMetrics
}

func promCacheHit() {
	if pm := promGet(); pm != nil {
		pm.cacheHits.Inc()
	}
}

func promCacheMiss() {
	if pm := promGet(); pm != nil {
		pm.cacheMisses.Inc()
	}
}

func promEvictions(n int) {
	if pm := promGet(); pm != nil {
		pm.cacheEvictions.Add(float64(n))
	}
}

func promLoad(durationMs int64, fromCache, success bool) {
	pm := promGet()
	if pm == nil {
		return
	}
	source := "fetch"
	if fromCache {
		source = "cache"
	}
	status := "ok"
	if !success {
		status = "error"
	}
	pm.loadsTotal.WithLabelValues(source, status).Inc()
	pm.loadDuration.Observe(float64(durationMs))
}

func promPreload(success bool) {
	pm := promGet()
	if pm == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	pm.preloadsTotal.WithLabelValues(status).Inc()
}

func promTimeout() {
	if pm := promGet(); pm != nil {
		pm.timeoutsTotal.Inc()
	}
}
