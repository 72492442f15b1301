package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cineverse",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	CatalogRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "catalog_requests_total",
		Help:      "Total requests to the catalog backend by operation and result status.",
	}, []string{"operation", "status"})

	CatalogRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cineverse",
		Name:      "catalog_request_duration_seconds",
		Help:      "Catalog backend request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	CatalogRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "catalog_retries_total",
		Help:      "Catalog request retries by operation.",
	}, []string{"operation"})

	CategoryFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "feed_category_fetch_total",
		Help:      "Feed category fetch outcomes by category and status.",
	}, []string{"category", "status"})

	CategoryAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cineverse",
		Name:      "feed_category_available",
		Help:      "Whether a feed category is available (1) or blocked by circuit breaker (0).",
	}, []string{"category"})

	FeedAllFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "feed_all_failed_total",
		Help:      "Fetch cycles in which every feed category failed.",
	})

	SuggestLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "suggest_lookups_total",
		Help:      "Suggest lookups by outcome: applied, failed or stale.",
	}, []string{"outcome"})

	SuggestSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cineverse",
		Name:      "suggest_sessions_active",
		Help:      "Open websocket suggest sessions.",
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "catalog_cache_hits_total",
		Help:      "Total number of catalog cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cineverse",
		Name:      "catalog_cache_misses_total",
		Help:      "Total number of catalog cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CatalogRequestsTotal,
		CatalogRequestDuration,
		CatalogRetriesTotal,
		CategoryFetchTotal,
		CategoryAvailable,
		FeedAllFailedTotal,
		SuggestLookupsTotal,
		SuggestSessionsActive,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
