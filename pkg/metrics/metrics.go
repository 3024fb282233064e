package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindmate_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindmate_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// 聊天业务指标
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindmate_chat_messages_total",
			Help: "Chat message mutations",
		},
		[]string{"action"}, // sent / deleted / edited
	)

	HistoryReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindmate_chat_history_reads_total",
			Help: "History reads by source",
		},
		[]string{"source"}, // cache / store / cursor
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindmate_ws_active_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	OfflineMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindmate_offline_messages_total",
			Help: "Offline queue traffic",
		},
		[]string{"op"}, // queued / delivered
	)

	DetachedTaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindmate_detached_task_failures_total",
			Help: "Failures of fire-and-forget tasks",
		},
		[]string{"task"},
	)
)

// Middleware 记录请求次数与耗时，路径使用路由模板避免高基数
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
