// Package metrics 注册进程内的 Prometheus 指标
// 各组件直接调用这里的函数，/metrics 由 gin 路由暴露
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	storeChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_store_changes_total",
			Help: "Total number of applied document store changes.",
		},
		[]string{"op"},
	)
	busSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemeral_bus_subscriptions_active",
			Help: "Number of live subscriptions on the bus.",
		},
	)
	busHandlerPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemeral_bus_handler_panics_total",
			Help: "Total number of recovered subscriber panics.",
		},
	)
	messageDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_message_deletions_total",
			Help: "Total number of messages removed by the lifecycle engine.",
		},
		[]string{"reason"},
	)
	deletionTimersPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemeral_deletion_timers_pending",
			Help: "Number of scheduled message deletions not yet fired.",
		},
	)
	friendshipOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_friendship_ops_total",
			Help: "Total number of friendship operations by result.",
		},
		[]string{"op", "result"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_http_requests_total",
			Help: "Total number of HTTP requests processed by the local API.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ephemeral_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemeral_ws_active_connections",
			Help: "Number of active websocket subscription connections.",
		},
	)
	changeFeedErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemeral_change_feed_errors_total",
			Help: "Total number of change feed publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		storeChangesTotal,
		busSubscriptionsActive,
		busHandlerPanicsTotal,
		messageDeletionsTotal,
		deletionTimersPending,
		friendshipOpsTotal,
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		changeFeedErrorsTotal,
	)
}

// Handler 暴露默认注册表
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// HTTPMetricsMiddleware 记录请求数和耗时
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncStoreChange(op string) {
	storeChangesTotal.WithLabelValues(op).Inc()
}

func IncSubscriptions() {
	busSubscriptionsActive.Inc()
}

func DecSubscriptions() {
	busSubscriptionsActive.Dec()
}

func IncHandlerPanic() {
	busHandlerPanicsTotal.Inc()
}

// AddMessageDeletions reason 取值 viewOnce / timedDelete / wipe
func AddMessageDeletions(reason string, n int) {
	messageDeletionsTotal.WithLabelValues(reason).Add(float64(n))
}

func IncTimersPending() {
	deletionTimersPending.Inc()
}

func DecTimersPending() {
	deletionTimersPending.Dec()
}

// IncFriendshipOp result 取值 ok / noop / rejected / partial / error
func IncFriendshipOp(op, result string) {
	friendshipOpsTotal.WithLabelValues(op, result).Inc()
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncChangeFeedError() {
	changeFeedErrorsTotal.Inc()
}
