// Package metrics 暴露协作引擎的 Prometheus 指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 连接类型
const (
	TransportRoom = "room"
	TransportDoc  = "doc"
)

var (
	WsConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "editor_ws_connections",
		Help: "Current number of active websocket connections",
	}, []string{"transport"})
	RoomEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "editor_room_events_total",
		Help: "Total number of room socket events handled",
	}, []string{"event", "result"})
	VersionConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editor_version_conflicts_total",
		Help: "Total number of whole-document writes rejected for a stale version",
	})
	DroppedMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "editor_dropped_messages_total",
		Help: "Total number of outbound messages dropped because a client buffer was full",
	}, []string{"transport"})
	DocUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editor_doc_updates_total",
		Help: "Total number of document updates that changed a shared document",
	})
	DocFlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "editor_doc_flushes_total",
		Help: "Total number of document checkpoints",
	}, []string{"result"})
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "editor_active_rooms",
		Help: "Current number of rooms with a running room actor",
	})
	ActiveDocuments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "editor_active_documents",
		Help: "Current number of documents loaded in memory",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, RoomEventsTotal, VersionConflictsTotal, DroppedMessagesTotal,
		DocUpdatesTotal, DocFlushesTotal, ActiveRooms, ActiveDocuments,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 /metrics 的 gin 处理函数
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
