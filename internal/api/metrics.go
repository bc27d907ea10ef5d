package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seantiz/modreg/internal/engine"
)

const (
	unmatched      = "unmatched"
	collectTimeout = 5 * time.Second
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modreg_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modreg_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

// metricsMiddleware records request count and duration for every HTTP request.
// Uses the chi route pattern (not the raw path) to avoid unbounded cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// metricsHandler serves the process-wide metrics together with the module
// gauges of this server's registry.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, s.metrics},
		promhttp.HandlerOpts{},
	)
}

// moduleCollector reports registry statistics as gauges at scrape time.
type moduleCollector struct {
	registry engine.Registry
	logger   *slog.Logger

	total   *prometheus.Desc
	enabled *prometheus.Desc
	core    *prometheus.Desc
	loaded  *prometheus.Desc
}

func newModuleCollector(reg engine.Registry, logger *slog.Logger) *moduleCollector {
	return &moduleCollector{
		registry: reg,
		logger:   logger,
		total:    prometheus.NewDesc("modreg_modules", "Number of installed modules.", nil, nil),
		enabled:  prometheus.NewDesc("modreg_modules_enabled", "Number of enabled modules.", nil, nil),
		core:     prometheus.NewDesc("modreg_modules_core", "Number of core modules.", nil, nil),
		loaded:   prometheus.NewDesc("modreg_modules_loaded", "Number of modules loaded in this process.", nil, nil),
	}
}

func (c *moduleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.enabled
	ch <- c.core
	ch <- c.loaded
}

func (c *moduleCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.registry.Statistics(ctx)
	if err != nil {
		c.logger.Error("collect module statistics", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stats.Total))
	ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, float64(stats.Enabled))
	ch <- prometheus.MustNewConstMetric(c.core, prometheus.GaugeValue, float64(stats.Core))
	ch <- prometheus.MustNewConstMetric(c.loaded, prometheus.GaugeValue, float64(stats.Loaded))
}
