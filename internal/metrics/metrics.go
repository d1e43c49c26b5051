// Package metrics defines the Prometheus instrumentation surface for the
// proxy: client-facing responses by cache outcome, Wayback upstream
// fetch behavior, crawler progress, and throttle bytes sent. Kept
// low-cardinality throughout — no per-URL labels.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// proxyResponsesTotal counts client-facing responses by method,
	// status, and cache outcome (hit-curated, hit-hot, miss, bypass).
	proxyResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayback_proxy_responses_total",
			Help: "Total forward-proxy responses by method, status, and cache outcome",
		},
		[]string{"method", "status", "cache"},
	)
	proxyResponseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayback_proxy_response_duration_seconds",
			Help:    "End-to-end forward-proxy response duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cache"},
	)

	waybackFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayback_upstream_fetch_total",
			Help: "Total Wayback Machine fetches by outcome",
		},
		[]string{"outcome"},
	)
	waybackFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wayback_upstream_fetch_duration_seconds",
			Help:    "Wayback Machine fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	crawlURLsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wayback_crawl_urls_fetched_total",
		Help: "Total URLs successfully fetched and stored by the crawler",
	})
	crawlURLsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wayback_crawl_urls_failed_total",
		Help: "Total URLs the crawler failed to fetch",
	})
	crawlRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wayback_crawl_running",
		Help: "1 while a crawl is running or stopping, else 0",
	})

	throttleBytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wayback_throttle_bytes_sent_total",
		Help: "Total response bytes written to clients through the throttle stage",
	})

	cacheStoreUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wayback_cache_store_unavailable_total",
		Help: "Total operations that hit a cache store connectivity failure",
	})
)

func init() {
	prometheus.MustRegister(
		proxyResponsesTotal,
		proxyResponseDuration,
		waybackFetchTotal,
		waybackFetchDuration,
		crawlURLsFetched,
		crawlURLsFailed,
		crawlRunning,
		throttleBytesSent,
		cacheStoreUnavailable,
	)
}

func normCache(v string) string {
	if v == "" {
		return "bypass"
	}
	return v
}

// ObserveProxyResponse records one client-facing proxy response.
func ObserveProxyResponse(method string, status int, cache string, dur time.Duration) {
	cache = normCache(cache)
	proxyResponsesTotal.WithLabelValues(method, strconv.Itoa(status), cache).Inc()
	proxyResponseDuration.WithLabelValues(cache).Observe(dur.Seconds())
}

// ObserveWaybackFetch records one upstream Wayback Machine fetch attempt.
func ObserveWaybackFetch(outcome string, dur time.Duration) {
	waybackFetchTotal.WithLabelValues(outcome).Inc()
	waybackFetchDuration.Observe(dur.Seconds())
}

// CrawlURLFetched increments the crawler's success counter.
func CrawlURLFetched() { crawlURLsFetched.Inc() }

// CrawlURLFailed increments the crawler's failure counter.
func CrawlURLFailed() { crawlURLsFailed.Inc() }

// CrawlRunningSet sets whether a crawl is currently active.
func CrawlRunningSet(running bool) {
	if running {
		crawlRunning.Set(1)
		return
	}
	crawlRunning.Set(0)
}

// ThrottleBytesAdd adds n bytes to the total bytes-sent-through-throttle counter.
func ThrottleBytesAdd(n int) { throttleBytesSent.Add(float64(n)) }

// CacheStoreUnavailableInc records a cache store connectivity failure.
func CacheStoreUnavailableInc() { cacheStoreUnavailable.Inc() }
