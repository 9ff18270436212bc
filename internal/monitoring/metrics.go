package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// AI provider metrics
	AIProviderLatency  *prometheus.HistogramVec
	AIProviderRequests *prometheus.CounterVec
	AIProviderErrors   *prometheus.CounterVec
	AIProviderTokens   *prometheus.CounterVec
	AIProviderCost     *prometheus.CounterVec
	AIHealthChecks     *prometheus.CounterVec

	// Orchestrator metrics
	AIFallbacks       *prometheus.CounterVec
	AIExhausted       prometheus.Counter
	AnalysisMockFalls *prometheus.CounterVec

	// Catalog metrics
	CatalogChecks       *prometheus.CounterVec
	CatalogUpdatesFound prometheus.Counter
	CatalogCheckCost    prometheus.Counter

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init registers the Prometheus metrics once and returns them
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"method", "path"},
			),
			HTTPRequestsInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "http_requests_in_flight",
					Help: "Number of HTTP requests currently being processed",
				},
			),

			AIProviderLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ai_provider_latency_seconds",
					Help:    "AI provider response latency in seconds",
					Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120},
				},
				[]string{"provider", "model"},
			),
			AIProviderRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_provider_requests_total",
					Help: "Total number of chat requests to AI providers",
				},
				[]string{"provider", "model", "status"},
			),
			AIProviderErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_provider_errors_total",
					Help: "Total number of errors from AI providers",
				},
				[]string{"provider", "model", "error_type"},
			),
			AIProviderTokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_provider_tokens_total",
					Help: "Tokens consumed per provider and direction",
				},
				[]string{"provider", "model", "direction"},
			),
			AIProviderCost: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_provider_cost_usd_total",
					Help: "Estimated AI spend in USD",
				},
				[]string{"provider", "model"},
			),
			AIHealthChecks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_health_checks_total",
					Help: "Provider health checks by result",
				},
				[]string{"provider", "result"},
			),

			AIFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ai_provider_fallbacks_total",
					Help: "Providers skipped during adapter selection",
				},
				[]string{"provider", "reason"},
			),
			AIExhausted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ai_providers_exhausted_total",
					Help: "Adapter selections where every provider failed",
				},
			),
			AnalysisMockFalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "analysis_mock_fallbacks_total",
					Help: "Analyses answered with the static ranking",
				},
				[]string{"reason"},
			),

			CatalogChecks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "catalog_checks_total",
					Help: "Catalog agent runs by trigger and final status",
				},
				[]string{"trigger", "status"},
			),
			CatalogUpdatesFound: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "catalog_updates_found_total",
					Help: "Model updates proposed by the catalog agent",
				},
			),
			CatalogCheckCost: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "catalog_check_cost_usd_total",
					Help: "AI spend of catalog agent runs in USD",
				},
			),

			RateLimitHits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_hits_total",
					Help: "Total number of rate limit hits",
				},
				[]string{"scope"},
			),

			CacheHits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_type"},
			),
			CacheMisses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_type"},
			),

			DBConnectionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "db_connections_active",
					Help: "Number of active database connections",
				},
			),
			DBConnectionsIdle: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "db_connections_idle",
					Help: "Number of idle database connections",
				},
			),
		}
	})
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Init()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordAIProviderCall records the outcome of one chat call
func RecordAIProviderCall(provider, model, status string, duration time.Duration) {
	m := Init()
	m.AIProviderRequests.WithLabelValues(provider, model, status).Inc()
	m.AIProviderLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordAIProviderError records an AI provider error
func RecordAIProviderError(provider, model, errorType string) {
	Init().AIProviderErrors.WithLabelValues(provider, model, errorType).Inc()
}

// RecordAIUsage records token consumption and estimated cost
func RecordAIUsage(provider, model string, inputTokens, outputTokens int, costUSD float64) {
	m := Init()
	m.AIProviderTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	m.AIProviderTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	m.AIProviderCost.WithLabelValues(provider, model).Add(costUSD)
}

// RecordHealthCheck records a provider health check result
func RecordHealthCheck(provider string, healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	Init().AIHealthChecks.WithLabelValues(provider, result).Inc()
}

// RecordFallback records a provider skipped during adapter selection
func RecordFallback(provider, reason string) {
	Init().AIFallbacks.WithLabelValues(provider, reason).Inc()
}

// RecordProvidersExhausted records a selection where no provider worked
func RecordProvidersExhausted() {
	Init().AIExhausted.Inc()
}

// RecordAnalysisMock records an analysis answered with the static ranking
func RecordAnalysisMock(reason string) {
	Init().AnalysisMockFalls.WithLabelValues(reason).Inc()
}

// RecordCatalogCheck records a finished catalog agent run
func RecordCatalogCheck(trigger, status string, updatesFound int, costUSD float64) {
	m := Init()
	m.CatalogChecks.WithLabelValues(trigger, status).Inc()
	m.CatalogUpdatesFound.Add(float64(updatesFound))
	m.CatalogCheckCost.Add(costUSD)
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit(scope string) {
	Init().RateLimitHits.WithLabelValues(scope).Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	Init().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	Init().CacheMisses.WithLabelValues(cacheType).Inc()
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	m := Init()
	m.DBConnectionsActive.Set(float64(active))
	m.DBConnectionsIdle.Set(float64(idle))
}
