// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestDurationBuckets はHTTPリクエスト処理時間のヒストグラムバケット（秒）。
var requestDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Collector はPrometheusメトリクスを収集する実装。
// middleware.HTTPObserver, middleware.AuthObserver, watchlist.SyncFailureCounter を満たす。
type Collector struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	authRequests     *prometheus.CounterVec
	authDuration     *prometheus.HistogramVec
	cacheSyncFailure prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: requestDurationBuckets,
		}, []string{"method", "path", "status"}),
		authRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchlist_auth_requests_total",
			Help: "認可判定の結果別の合計数",
		}, []string{"outcome"}),
		authDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchlist_auth_duration_seconds",
			Help:    "認可判定にかかった時間（秒）",
			Buckets: requestDurationBuckets,
		}, []string{"outcome"}),
		cacheSyncFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchlist_cache_sync_failures_total",
			Help: "セッションキャッシュへの逆参照書き込み失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.authRequests,
		c.authDuration,
		c.cacheSyncFailure,
	)

	return c
}

// RegisterRuntimeCollectors はGoランタイムとプロセスのメトリクスを登録する。
func RegisterRuntimeCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveHTTPRequest はHTTPリクエスト1件を記録する。routeはルートパターンを渡す。
func (c *Collector) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	c.httpRequests.WithLabelValues(method, route, code).Inc()
	c.httpDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// ObserveAuth は認可判定の結果と所要時間を記録する。
func (c *Collector) ObserveAuth(outcome string, elapsed time.Duration) {
	c.authRequests.WithLabelValues(outcome).Inc()
	c.authDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncCacheSyncFailure は逆参照書き込みの失敗を記録する。
func (c *Collector) IncCacheSyncFailure() {
	c.cacheSyncFailure.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
