package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	clockSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "clock_sync_total",
			Help:      "Count of server-time fetches by result.",
		},
		[]string{"result"},
	)

	clockOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "servedate",
			Name:      "clock_offset_seconds",
			Help:      "Server time minus device time at the last successful sync.",
		},
	)

	orderCachePurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "order_cache_purged_total",
			Help:      "Count of cached orders removed by reason.",
		},
		[]string{"reason"},
	)

	serveDateRollover = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "serve_date_rollover_total",
			Help:      "Count of observed business-day rollovers.",
		},
	)

	orderDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "order_decision_total",
			Help:      "Count of order validations by outcome code.",
		},
		[]string{"code"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	menuCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "menu_cache_lookups_total",
			Help:      "Count of menu window lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	menuCacheInvalidated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servedate",
			Name:      "menu_cache_invalidated_total",
			Help:      "Count of cached menu ranges invalidated by orders.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(clockSync, clockOffset, orderCachePurged, serveDateRollover, orderDecision, httpRequests, menuCacheLookups, menuCacheInvalidated)
	})
}

func IncClockSync(result string) {
	clockSync.WithLabelValues(result).Inc()
}

func SetClockOffset(seconds float64) {
	clockOffset.Set(seconds)
}

func IncOrderCachePurged(reason string) {
	orderCachePurged.WithLabelValues(reason).Inc()
}

func IncServeDateRollover() {
	serveDateRollover.Inc()
}

func IncOrderDecision(code string) {
	orderDecision.WithLabelValues(code).Inc()
}

func IncMenuCache(result string) {
	menuCacheLookups.WithLabelValues(result).Inc()
}

func AddMenuCacheInvalidated(n int) {
	menuCacheInvalidated.Add(float64(n))
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
