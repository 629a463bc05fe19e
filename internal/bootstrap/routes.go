package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	httpHandler "collaborative-editor/internal/handler/http"
	wsHandler "collaborative-editor/internal/handler/websocket"
	"collaborative-editor/internal/metrics"
	"collaborative-editor/internal/middleware"
)

// Routes 路由需要的处理器与中间件依赖
type Routes struct {
	Auth     *httpHandler.AuthHandler
	Rooms    *httpHandler.RoomHandler
	RoomWS   *wsHandler.WebSocketHandler
	DocWS    *wsHandler.DocHandler
	Verifier middleware.TokenVerifier
	Redis    *redis.Client
}

// NewRouter 组装 Gin Engine 与全部路由
func NewRouter(cfg *Config, log *logrus.Logger, r Routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(metrics.GinMiddleware())
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", metrics.Handler())

	limit := middleware.RateLimit(r.Redis, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow)

	api := router.Group("/api")
	if !cfg.IsProduction() {
		// 开发环境下按用户名签发令牌
		api.POST("/dev/token", limit, r.Auth.IssueDevToken)
	}
	roomRoutes := api.Group("/rooms").Use(middleware.Auth(r.Verifier), limit)
	{
		roomRoutes.POST("", r.Rooms.CreateRoom)
		roomRoutes.GET("/:slug", r.Rooms.GetRoom)
		roomRoutes.PUT("/:slug/code", r.Rooms.SubmitCode)
		roomRoutes.GET("/:slug/chat", r.Rooms.ListChat)
	}

	// 两个 socket 端点在握手内部自行鉴权并以关闭码拒绝
	wsRoutes := router.Group("/ws")
	{
		wsRoutes.GET("/room", r.RoomWS.HandleConnection)
		wsRoutes.GET("/doc/:slug", r.DocWS.HandleConnection)
	}
	return router
}

// CORSMiddleware 允许配置的前端来源跨域访问
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		fields := logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		}
		if userID, ok := c.Get(middleware.ContextUserID); ok {
			fields["user_id"] = userID
		}
		entry := log.WithFields(fields)

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
