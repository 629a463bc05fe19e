package hub

import (
	"encoding/json"
	"sync"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/metrics"
	"collaborative-editor/internal/service"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client 代表一个连接到 Hub 的房间 socket。
// 一个连接可以先后加入多个房间。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn // 测试中可以为 nil
	socketID string
	identity domain.Identity
	limiter  *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

// NewClient 创建一个新的 Client 实例。limiter 为空时不限制入站速率。
func NewClient(hub *Hub, conn *websocket.Conn, socketID string, identity domain.Identity, limiter *rate.Limiter) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		socketID: socketID,
		identity: identity,
		limiter:  limiter,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		c.log().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.log().Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log().Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.Deliver(message)
	}
}

// Deliver 解析一条入站消息并交给 Hub
func (c *Client) Deliver(message []byte) {
	env, err := dto.Decode(message)
	if err != nil {
		c.sendError("", service.ErrInvalidPayload)
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		if env.Event != dto.EventCursorUpdate {
			c.sendError(env.Event, errRateLimited)
		}
		return
	}

	var ref dto.RoomRef
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			c.sendError(env.Event, service.ErrInvalidPayload)
			return
		}
	}
	if !c.hub.QueueEvent(c, env.Event, ref.Slug, env.Data) {
		c.sendError(env.Event, errServerBusy)
	}
}

// WritePump 将消息从 send 通道泵送到 WebSocket 连接。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log().Debug("writePump exited")
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// Send 非阻塞地把消息放入发送队列。队列已满或连接已关闭时丢弃并返回 false。
func (c *Client) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		metrics.DroppedMessagesTotal.WithLabelValues(metrics.TransportRoom).Inc()
		c.log().Warn("Client send channel full, message dropped")
		return false
	}
}

// sendEvent 序列化并发送一个事件
func (c *Client) sendEvent(event string, data interface{}) {
	msg, err := dto.Encode(event, data)
	if err != nil {
		c.log().WithError(err).Error("Failed to encode event")
		return
	}
	c.Send(msg)
}

// sendError 只发给出错的连接
func (c *Client) sendError(event string, err error) {
	c.sendEvent(dto.EventError, errorPayload(event, err))
}

// joinRoom 记录已加入的房间。连接已关闭时返回 false。
func (c *Client) joinRoom(slug string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[slug] = struct{}{}
	return true
}

func (c *Client) leaveRoom(slug string) {
	c.mu.Lock()
	delete(c.rooms, slug)
	c.mu.Unlock()
}

// close 标记连接关闭并返回当时已加入的房间。只有第一次调用返回房间列表。
func (c *Client) close() []string {
	c.mu.Lock()
	var slugs []string
	if !c.closed {
		c.closed = true
		for slug := range c.rooms {
			slugs = append(slugs, slug)
		}
		c.rooms = make(map[string]struct{})
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return slugs
}

func (c *Client) SocketID() string          { return c.socketID }
func (c *Client) Identity() domain.Identity { return c.identity }
func (c *Client) UserID() uint              { return c.identity.UserID }

func (c *Client) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"user_id": c.identity.UserID, "socket_id": c.socketID})
}
