package websocket

import (
	"context"
	"errors"
	"time"

	"collaborative-editor/internal/docsync"
	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/metrics"
	"collaborative-editor/internal/middleware"
	"collaborative-editor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	closeUnauthorized = docsync.CloseUnauthorized
	cleanupTimeout    = 5 * time.Second
)

// PresenceBroadcaster 把文档连接的上下线通知给房间 socket 的订阅者
type PresenceBroadcaster interface {
	Publish(slug string, message []byte, excludeSocket string)
}

// DocHandler 负责文档同步 socket 的握手：认证、房间检查、成员登记、挂载文档。
type DocHandler struct {
	upgrader  websocket.Upgrader
	verifier  middleware.TokenVerifier
	documents *service.DocumentService
	presence  *service.PresenceService
	registry  *docsync.Registry
	broadcast PresenceBroadcaster
	opts      Options
}

// NewDocHandler 创建 DocHandler 实例
func NewDocHandler(verifier middleware.TokenVerifier, documents *service.DocumentService, presence *service.PresenceService,
	registry *docsync.Registry, broadcast PresenceBroadcaster, opts Options) *DocHandler {
	if verifier == nil || documents == nil || presence == nil || registry == nil || broadcast == nil {
		panic("dependencies cannot be nil for DocHandler")
	}
	return &DocHandler{
		upgrader:  newUpgrader(opts.AllowedOrigins),
		verifier:  verifier,
		documents: documents,
		presence:  presence,
		registry:  registry,
		broadcast: broadcast,
		opts:      opts,
	}
}

// HandleConnection 处理文档同步连接请求
// URL 预期格式: /ws/doc/:slug?token=...
func (h *DocHandler) HandleConnection(c *gin.Context) {
	slug := c.Param("slug")
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Doc Handler: Failed to upgrade connection")
		return
	}

	identity, ok := authenticate(c, h.verifier, ws)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logCtx := logrus.WithFields(logrus.Fields{"user_id": identity.UserID, "room_slug": slug})

	if _, err := h.documents.Open(ctx, slug); err != nil {
		logCtx.WithError(err).Warn("Doc Handler: Room cannot be opened for document sync")
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			closeWith(ws, docsync.CloseNotFound, "room not found")
		case errors.Is(err, service.ErrSyncModeMismatch):
			closeWith(ws, docsync.CloseSyncModeMismatch, "room does not use document sync")
		default:
			closeWith(ws, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}

	// 先标记为存活，Reconcile 不会把刚登记的条目当成死连接
	socketID := service.NewSocketID(h.opts.InstanceID)
	release := h.registry.Reserve(socketID)
	defer release()

	res, err := h.presence.Join(ctx, slug, *identity, socketID)
	if err != nil {
		logCtx.WithError(err).Warn("Doc Handler: Join rejected")
		switch {
		case errors.Is(err, service.ErrPrivateRoom):
			closeWith(ws, docsync.CloseForbidden, "private room")
		case errors.Is(err, service.ErrRoomNotFound):
			closeWith(ws, docsync.CloseNotFound, "room not found")
		default:
			closeWith(ws, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}

	readOnly := !res.Member.AccessLevel.CanEdit()
	conn := docsync.NewConn(ws, socketID, *identity, readOnly, newLimiter(h.opts.MessagesPerSecond))
	if err := h.registry.Attach(ctx, slug, conn); err != nil {
		logCtx.WithError(err).Warn("Doc Handler: Failed to attach document")
		if errors.Is(err, docsync.ErrLeaseHeld) {
			closeWith(ws, docsync.CloseOwnedElsewhere, "document owned by another instance")
		} else {
			closeWith(ws, websocket.CloseInternalServerErr, "internal error")
		}
		h.leave(slug, identity.UserID, socketID)
		return
	}

	metrics.WsConnections.WithLabelValues(metrics.TransportDoc).Inc()
	defer metrics.WsConnections.WithLabelValues(metrics.TransportDoc).Dec()
	logCtx.WithFields(logrus.Fields{"socket_id": socketID, "read_only": readOnly}).Info("Doc Handler: Document socket attached")

	if res.Created {
		h.publish(slug, dto.EventUserJoined, dto.UserJoinedPayload{
			Slug:        slug,
			UserID:      identity.UserID,
			UserName:    identity.Name(),
			Avatar:      identity.Avatar,
			AccessLevel: res.Member.AccessLevel,
			ActiveUsers: res.Room.ActiveUsers,
		})
	}

	readCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-conn.Done()
		cancel()
	}()
	go conn.WritePump()
	conn.ReadPump(readCtx)
	conn.Close(websocket.CloseNormalClosure, "")
	conn.Wait()

	h.registry.Detach(conn)
	h.leave(slug, identity.UserID, socketID)
	logCtx.WithFields(logrus.Fields{"socket_id": socketID, "close_code": conn.CloseCode()}).Info("Doc Handler: Document socket closed")
}

// leave 只在条目仍记录着本连接时置为不活跃，并通知房间
func (h *DocHandler) leave(slug string, userID uint, socketID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	changed, err := h.presence.Leave(ctx, slug, userID, socketID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_slug": slug, "socket_id": socketID}).Warn("Doc Handler: Failed to record leave")
		return
	}
	if changed {
		h.publish(slug, dto.EventUserLeft, dto.UserLeftPayload{Slug: slug, UserID: userID})
	}
}

func (h *DocHandler) publish(slug, event string, payload interface{}) {
	msg, err := dto.Encode(event, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Doc Handler: Failed to encode presence event")
		return
	}
	h.broadcast.Publish(slug, msg, "")
}
