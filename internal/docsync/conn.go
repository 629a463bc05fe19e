package docsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"collaborative-editor/internal/crdt"
	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 1 << 20
	sendBufferSize = 256
)

// 文档同步连接的关闭码
const (
	CloseUnauthorized     = 4401
	CloseForbidden        = 4403
	CloseNotFound         = 4404
	CloseOwnedElsewhere   = 4409
	CloseSyncModeMismatch = 4400
)

// Conn 是一个文档同步连接。只收发二进制帧。
type Conn struct {
	ws       *websocket.Conn // 测试中可以为 nil
	socketID string
	identity domain.Identity
	readOnly atomic.Bool // 权限变更时由文档更新
	limiter  *rate.Limiter

	send      chan []byte
	done      chan struct{}
	written   chan struct{} // WritePump 发出关闭帧并关闭 socket 后关闭
	closeOnce sync.Once
	closeCode int
	closeText string

	doc *Document // Attach 成功后设置
}

// NewConn 创建连接。readOnly 的连接只能接收，不能修改文档。
func NewConn(ws *websocket.Conn, socketID string, identity domain.Identity, readOnly bool, limiter *rate.Limiter) *Conn {
	c := &Conn{
		ws:       ws,
		socketID: socketID,
		identity: identity,
		limiter:  limiter,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		written:  make(chan struct{}),
	}
	c.readOnly.Store(readOnly)
	return c
}

// Send 非阻塞发送。缓冲区已满时关闭连接，客户端重连后重新同步。
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.DroppedMessagesTotal.WithLabelValues(metrics.TransportDoc).Inc()
		c.log().Warn("Document connection too slow, closing")
		c.Close(websocket.CloseTryAgainLater, "slow consumer")
		return false
	}
}

// Close 以给定关闭码关闭连接，只有第一次调用生效。
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeText = code, reason
		close(c.done)
	})
}

// Done 在连接关闭后返回
func (c *Conn) Done() <-chan struct{} { return c.done }

// CloseCode 返回关闭码，未关闭时为 0
func (c *Conn) CloseCode() int {
	select {
	case <-c.done:
		return c.closeCode
	default:
		return 0
	}
}

func (c *Conn) SocketID() string { return c.socketID }
func (c *Conn) ReadOnly() bool   { return c.readOnly.Load() }

// Wait 阻塞到 WritePump 写完关闭帧并关闭 socket
func (c *Conn) Wait() { <-c.written }

// ReadPump 读取二进制帧并提交给文档，直到连接关闭。
// 限速器用 Wait 施加背压，而不是丢弃帧。
// socket 由 WritePump 在发出关闭帧后关闭，ReadPump 返回时只标记连接关闭。
func (c *Conn) ReadPump(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log().WithError(err).Warn("Document socket read error (unexpected close)")
			}
			c.Close(websocket.CloseNormalClosure, "")
			return
		}
		if messageType != websocket.BinaryMessage {
			c.Close(websocket.CloseUnsupportedData, "binary frames only")
			return
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				c.Close(websocket.CloseGoingAway, "")
				return
			}
		}
		if !c.Receive(message) {
			return
		}
	}
}

// Receive 解码一帧并提交给文档。返回 false 表示连接已关闭。
func (c *Conn) Receive(message []byte) bool {
	frame, err := crdt.DecodeFrame(message)
	if err != nil {
		c.log().WithError(err).Warn("Malformed document frame")
		c.Close(websocket.CloseInvalidFramePayloadData, "malformed frame")
		return false
	}
	if c.doc == nil {
		return false
	}
	return c.doc.submit(c, frame)
}

// WritePump 把发送队列写入连接，连接关闭时发送关闭帧。
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.written)
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.log().WithError(err).Debug("Failed to write document frame")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

func (c *Conn) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"user_id": c.identity.UserID, "socket_id": c.socketID})
}
