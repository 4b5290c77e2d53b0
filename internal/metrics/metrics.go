package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes floor filter metrics that are safe to scrape via Prometheus.
// All methods are no-ops on a nil receiver.
type Metrics struct {
	registry               *prometheus.Registry
	httpRequests           *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	selectionChanges       *prometheus.CounterVec
	expressionBuildSeconds prometheus.Histogram
	classifiedLayers       prometheus.Gauge
	catalogFacilities      prometheus.Gauge
	catalogReloads         *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorfilter",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the floor filter API",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "floorfilter",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the floor filter API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	selectionChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorfilter",
		Name:      "selection_changes_total",
		Help:      "Selection changes by outcome (applied, cleared, error)",
	}, []string{"result"})

	expressionBuildSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "floorfilter",
		Name:      "expression_build_duration_seconds",
		Help:      "Time spent building and applying definition expressions",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	classifiedLayers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "floorfilter",
		Name:      "classified_layers",
		Help:      "Layers and sub-layers in the current layer index",
	})

	catalogFacilities := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "floorfilter",
		Name:      "catalog_facilities",
		Help:      "Facilities in the current level catalog",
	})

	catalogReloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorfilter",
		Name:      "catalog_reloads_total",
		Help:      "Level catalog reloads by outcome (ok, error)",
	}, []string{"result"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		selectionChanges,
		expressionBuildSeconds,
		classifiedLayers,
		catalogFacilities,
		catalogReloads,
	)

	return &Metrics{
		registry:               registry,
		httpRequests:           httpRequests,
		httpRequestDuration:    httpRequestDuration,
		selectionChanges:       selectionChanges,
		expressionBuildSeconds: expressionBuildSeconds,
		classifiedLayers:       classifiedLayers,
		catalogFacilities:      catalogFacilities,
		catalogReloads:         catalogReloads,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) IncSelectionChange(result string) {
	if m == nil {
		return
	}
	m.selectionChanges.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExpressionBuild(duration time.Duration) {
	if m == nil {
		return
	}
	m.expressionBuildSeconds.Observe(duration.Seconds())
}

func (m *Metrics) SetClassifiedLayers(n int) {
	if m == nil {
		return
	}
	m.classifiedLayers.Set(float64(n))
}

func (m *Metrics) SetCatalogFacilities(n int) {
	if m == nil {
		return
	}
	m.catalogFacilities.Set(float64(n))
}

func (m *Metrics) IncCatalogReload(result string) {
	if m == nil {
		return
	}
	m.catalogReloads.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
