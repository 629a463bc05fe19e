package websocket

import (
	"net/http"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/hub"
	"collaborative-editor/internal/middleware"
	"collaborative-editor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options 两种 socket 共用的参数
type Options struct {
	InstanceID        string   // 写入 socket ID 前缀
	MessagesPerSecond float64  // 每个连接的入站速率，0 表示不限制
	AllowedOrigins    []string // 为空时允许所有来源
}

// WebSocketHandler 负责房间 socket 的升级、认证和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	verifier middleware.TokenVerifier
	opts     Options
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, verifier middleware.TokenVerifier, opts Options) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if verifier == nil {
		panic("TokenVerifier cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: newUpgrader(opts.AllowedOrigins),
		hub:      h,
		verifier: verifier,
		opts:     opts,
	}
}

// HandleConnection 处理房间 socket 连接请求
// URL 预期格式: /ws/room?token=...
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误响应
		logrus.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	identity, ok := authenticate(c, h.verifier, conn)
	if !ok {
		return
	}

	socketID := service.NewSocketID(h.opts.InstanceID)
	client := hub.NewClient(h.hub, conn, socketID, *identity, newLimiter(h.opts.MessagesPerSecond))
	h.hub.Register(client)
	client.Run()

	logrus.WithFields(logrus.Fields{"user_id": identity.UserID, "socket_id": socketID}).Info("WS Handler: Room socket connected")
}

// authenticate 校验 token，失败时以 4401 关闭连接
func authenticate(c *gin.Context, verifier middleware.TokenVerifier, conn *websocket.Conn) (*domain.Identity, bool) {
	token, err := middleware.ExtractToken(c)
	if err == nil {
		var identity *domain.Identity
		identity, err = verifier.Verify(c.Request.Context(), token)
		if err == nil {
			return identity, true
		}
	}
	logrus.WithError(err).Warn("WS Handler: Authentication failed")
	closeWith(conn, closeUnauthorized, "authentication failed")
	return nil, false
}

// closeWith 发送关闭帧后断开连接
func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
