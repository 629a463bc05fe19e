package hub

import (
	"encoding/json"
	"sync"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/metrics"
	"collaborative-editor/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 整文档提交需要较大的上限。
	maxMessageSize = service.MaxCodeSize + 4096

	sendBufferSize = 256
	mailboxSize    = 64
	hubQueueSize   = 1024

	defaultStoreTimeout = 5 * time.Second
)

type messageKind int

const (
	kindUnregister messageKind = iota
	kindEvent
	kindPublish
)

// hubMessage 在 Hub 内部通道传递的消息
type hubMessage struct {
	kind    messageKind
	client  *Client
	slug    string
	event   string
	data    json.RawMessage
	raw     []byte // 仅 publish
	exclude string // 仅 publish，不接收的 socket
}

// actorDone 房间 actor 处理完一个事件后的回执
type actorDone struct {
	slug        string
	subscribers int
}

// Services Hub 依赖的业务服务
type Services struct {
	Presence *service.PresenceService
	Version  *service.VersionService
	Rooms    *service.RoomService
	Access   AccessListener // 可选
}

// AccessListener 接收成员权限变更，让其他通道上已建立的连接立即生效
type AccessListener interface {
	SetAccess(slug string, userID uint, level domain.AccessLevel)
}

// Hub 维护活跃客户端集合，并把事件分派给每个房间的 actor。
// 同一房间的事件由同一个 actor 串行处理，广播顺序与持久化顺序一致。
type Hub struct {
	messageChan chan hubMessage
	doneChan    chan actorDone
	stopChan    chan struct{}
	stopOnce    sync.Once
	stopped     chan struct{}

	// 只由 Run 所在的 goroutine 访问
	rooms map[string]*roomActor

	// socketID -> client，供 IsLive 并发读取
	clients   map[string]*Client
	clientsMu sync.RWMutex

	services     Services
	storeTimeout time.Duration
}

// NewHub 创建并返回一个新的 Hub 实例。storeTimeout 为每个事件的存储调用超时。
func NewHub(services Services, storeTimeout time.Duration) *Hub {
	if services.Presence == nil || services.Version == nil || services.Rooms == nil {
		panic("services cannot be nil for Hub")
	}
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Hub{
		messageChan:  make(chan hubMessage, hubQueueSize),
		doneChan:     make(chan actorDone, hubQueueSize),
		stopChan:     make(chan struct{}),
		stopped:      make(chan struct{}),
		rooms:        make(map[string]*roomActor),
		clients:      make(map[string]*Client),
		services:     services,
		storeTimeout: storeTimeout,
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	defer close(h.stopped)

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.kind {
			case kindUnregister:
				h.unregisterClient(msg.client)
			case kindEvent:
				h.dispatchEvent(msg)
			case kindPublish:
				h.dispatchPublish(msg)
			default:
				log.Warnf("Hub: Received unknown message kind: %d", msg.kind)
			}
		case done := <-h.doneChan:
			h.actorFinished(done)
		case <-h.stopChan:
			h.shutdown()
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有客户端，等待主循环退出。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	<-h.stopped
}

// Register 注册客户端。注册是同步的，返回后 IsLive 即可看到该连接。
func (h *Hub) Register(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.socketID] = client
	h.clientsMu.Unlock()
	metrics.WsConnections.WithLabelValues(metrics.TransportRoom).Inc()
	client.log().Info("Client registered to Hub")
}

// IsLive 判断 socket 是否仍连接在本进程的 Hub 上
func (h *Hub) IsLive(socketID string) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	_, ok := h.clients[socketID]
	return ok
}

// Publish 把已序列化的消息广播给房间的订阅者 (排除 excludeSocket)。
// 房间没有订阅者时直接丢弃。供文档同步通道发布在线状态变化。
func (h *Hub) Publish(slug string, message []byte, excludeSocket string) {
	h.enqueue(hubMessage{kind: kindPublish, slug: slug, raw: message, exclude: excludeSocket})
}

// QueueEvent 把客户端事件放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满。
func (h *Hub) QueueEvent(client *Client, event string, slug string, data json.RawMessage) bool {
	return h.enqueue(hubMessage{kind: kindEvent, client: client, slug: slug, event: event, data: data})
}

func (h *Hub) enqueue(msg hubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{"room_slug": msg.slug, "event": msg.event}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// unregister 由客户端的 ReadPump 在退出时调用，必须送达。
func (h *Hub) unregister(client *Client) {
	select {
	case h.messageChan <- hubMessage{kind: kindUnregister, client: client}:
	case <-h.stopChan:
	}
}

// unregisterClient 关闭客户端，并在其加入过的每个房间里触发断开处理
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}

	h.clientsMu.Lock()
	if current, ok := h.clients[client.socketID]; ok && current == client {
		delete(h.clients, client.socketID)
		metrics.WsConnections.WithLabelValues(metrics.TransportRoom).Dec()
	}
	h.clientsMu.Unlock()

	slugs := client.close()
	for _, slug := range slugs {
		actor, ok := h.rooms[slug]
		if !ok {
			continue
		}
		// 断开事件不能因为邮箱已满而丢失
		h.deliver(actor, roomEvent{client: client, event: eventDisconnect}, true)
	}
	client.log().WithField("rooms", len(slugs)).Info("Client unregistered from Hub")
}

// dispatchEvent 把客户端事件交给房间 actor，必要时创建 actor
func (h *Hub) dispatchEvent(msg hubMessage) {
	if msg.slug == "" {
		msg.client.sendError(msg.event, service.ErrRoomNotFound)
		return
	}
	actor, ok := h.rooms[msg.slug]
	if !ok {
		actor = newRoomActor(h, msg.slug)
		h.rooms[msg.slug] = actor
		metrics.ActiveRooms.Inc()
		go actor.run()
	}
	if !h.deliver(actor, roomEvent{client: msg.client, event: msg.event, data: msg.data}, false) {
		msg.client.sendError(msg.event, errServerBusy)
	}
}

// dispatchPublish 只投递给已存在的房间 actor
func (h *Hub) dispatchPublish(msg hubMessage) {
	actor, ok := h.rooms[msg.slug]
	if !ok {
		return
	}
	h.deliver(actor, roomEvent{event: eventPublish, raw: msg.raw, exclude: msg.exclude}, false)
}

// deliver 向 actor 的邮箱投递事件。pending 计数保证 actor 在事件处理完之前不会被回收。
func (h *Hub) deliver(actor *roomActor, ev roomEvent, mustDeliver bool) bool {
	actor.pending++
	select {
	case actor.mailbox <- ev:
		return true
	default:
	}
	if mustDeliver {
		go func() {
			select {
			case actor.mailbox <- ev:
			case <-h.stopChan:
			}
		}()
		return true
	}
	actor.pending--
	logrus.WithFields(logrus.Fields{"room_slug": actor.slug, "event": ev.event}).Warn("Room mailbox full, dropping event")
	return false
}

// actorFinished 处理 actor 回执，空闲且没有订阅者的 actor 被回收
func (h *Hub) actorFinished(done actorDone) {
	actor, ok := h.rooms[done.slug]
	if !ok {
		return
	}
	actor.pending--
	if actor.pending == 0 && done.subscribers == 0 {
		close(actor.mailbox)
		delete(h.rooms, done.slug)
		metrics.ActiveRooms.Dec()
		logrus.WithField("room_slug", done.slug).Debug("Room actor evicted")
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
		metrics.WsConnections.WithLabelValues(metrics.TransportRoom).Dec()
	}
	h.clientsMu.Unlock()
	// actor 通过 stopChan 退出，邮箱不在这里关闭
	for slug := range h.rooms {
		delete(h.rooms, slug)
		metrics.ActiveRooms.Dec()
	}
}

// finished 由 actor 调用，Hub 停止后不再等待
func (h *Hub) finished(done actorDone) {
	select {
	case h.doneChan <- done:
	case <-h.stopChan:
	}
}
