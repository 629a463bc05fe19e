package docsync

import (
	"context"
	"time"

	"collaborative-editor/internal/crdt"
	"collaborative-editor/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type commandKind int

const (
	cmdAttach commandKind = iota
	cmdDetach
	cmdFrame
	cmdAccess
	cmdEvict
	cmdStop
)

const (
	maxFlushRetry         = 30 * time.Second
	shutdownFlushAttempts = 3

	statusCheckpointFailed    = "checkpoint failed, retrying"
	statusCheckpointRecovered = "checkpoint recovered"
)

type command struct {
	kind     commandKind
	conn     *Conn
	frame    crdt.Frame
	userID   uint
	readOnly bool
	reply    chan struct{}
}

// Document 持有一个房间的权威 CRDT 文档与所有已连接的同步连接。
// 除 refs、ready、initErr 外的状态只由 run 所在的 goroutine 访问。
type Document struct {
	registry *Registry
	slug     string
	roomID   uint

	refs    int // 由 Registry.mu 保护
	ready   chan struct{}
	initErr error

	inbox   chan command
	stopped chan struct{}

	doc      *crdt.Doc
	conns    map[*Conn]struct{}
	dirty    bool
	timer    *time.Timer // 去抖或重试
	failures int         // 连续失败的检查点次数
	evicting bool        // 已无连接，等检查点成功后回收
}

func newDocument(r *Registry, slug string) *Document {
	return &Document{
		registry: r,
		slug:     slug,
		ready:    make(chan struct{}),
		inbox:    make(chan command, 64),
		stopped:  make(chan struct{}),
		conns:    make(map[*Conn]struct{}),
	}
}

// load 获取租约并加载文档，成功后启动 actor。
// 优先使用持久化的 CRDT 状态，字符 ID 与断线前一致；没有状态时从文本重建。
func (d *Document) load(ctx context.Context) error {
	r := d.registry
	ok, err := r.leases.AcquireLease(ctx, d.slug, r.opts.InstanceID, r.opts.LeaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}

	room, err := r.store.Open(ctx, d.slug)
	if err != nil {
		_ = r.leases.ReleaseLease(ctx, d.slug, r.opts.InstanceID)
		return err
	}
	d.roomID = room.ID
	d.doc = d.restore(room.DocState, room.Code)

	metrics.ActiveDocuments.Inc()
	go d.run()
	d.log().WithFields(logrus.Fields{"version": room.Version, "state_bytes": len(room.DocState)}).Info("Document loaded")
	return nil
}

func (d *Document) restore(state []byte, code string) *crdt.Doc {
	if len(state) == 0 {
		return crdt.NewDocFromText(crdt.SnapshotClient, code)
	}
	update, err := crdt.DecodeUpdate(state)
	if err == nil {
		var doc *crdt.Doc
		if doc, err = crdt.LoadDoc(crdt.SnapshotClient, update); err == nil {
			if doc.Text() != code {
				d.log().Warn("Persisted document state and code differ, using state")
			}
			return doc
		}
	}
	d.log().WithError(err).Error("Persisted document state is unreadable, rebuilding from code")
	return crdt.NewDocFromText(crdt.SnapshotClient, code)
}

func (d *Document) run() {
	defer metrics.ActiveDocuments.Dec()

	renew := time.NewTicker(d.registry.opts.LeaseTTL / 3)
	defer renew.Stop()

	for {
		var flushC <-chan time.Time
		if d.timer != nil {
			flushC = d.timer.C
		}

		select {
		case cmd := <-d.inbox:
			switch cmd.kind {
			case cmdAttach:
				d.evicting = false
				d.conns[cmd.conn] = struct{}{}
				// 先告诉客户端服务端已有的状态，客户端回复它独有的部分
				cmd.conn.Send(crdt.EncodeFrame(crdt.Frame{Kind: crdt.FrameSyncStep1, Payload: crdt.EncodeStateVector(d.doc.StateVector())}))
			case cmdDetach:
				delete(d.conns, cmd.conn)
			case cmdFrame:
				d.handleFrame(cmd.conn, cmd.frame)
			case cmdAccess:
				d.setAccess(cmd.userID, cmd.readOnly)
			case cmdEvict:
				if d.tryEvict() {
					close(d.stopped)
					close(cmd.reply)
					return
				}
			case cmdStop:
				d.shutdown()
				close(d.stopped)
				close(cmd.reply)
				return
			}
			if cmd.reply != nil {
				close(cmd.reply)
			}

		case <-flushC:
			d.timer = nil
			if err := d.flush(); err == nil && d.evicting && d.tryEvict() {
				close(d.stopped)
				return
			}

		case <-renew.C:
			if !d.renewLease() {
				d.loseLease()
				close(d.stopped)
				return
			}
		}
	}
}

func (d *Document) handleFrame(conn *Conn, frame crdt.Frame) {
	if _, attached := d.conns[conn]; !attached {
		return
	}

	switch frame.Kind {
	case crdt.FrameSyncStep1:
		sv, err := crdt.DecodeStateVector(frame.Payload)
		if err != nil {
			conn.Close(websocket.CloseInvalidFramePayloadData, "malformed state vector")
			return
		}
		diff := d.doc.EncodeStateAsUpdate(sv)
		conn.Send(crdt.EncodeFrame(crdt.Frame{Kind: crdt.FrameSyncStep2, Payload: crdt.EncodeUpdate(diff)}))

	case crdt.FrameSyncStep2, crdt.FrameUpdate:
		update, err := crdt.DecodeUpdate(frame.Payload)
		if err != nil {
			conn.Close(websocket.CloseInvalidFramePayloadData, "malformed update")
			return
		}
		if update.Empty() {
			return
		}
		if conn.ReadOnly() {
			conn.Close(CloseForbidden, "read-only connection")
			return
		}
		pending := d.doc.Pending()
		sv := d.doc.StateVector()
		changed, err := d.doc.Apply(update)
		if err != nil {
			d.log().WithError(err).WithField("socket_id", conn.socketID).Warn("Rejected document update")
			conn.Close(websocket.CloseInvalidFramePayloadData, "invalid update")
			if changed {
				// 只转发已经集成的部分
				d.broadcast(crdt.UpdateFrame(d.doc.EncodeStateAsUpdate(sv)), conn)
				d.markDirty()
			}
			return
		}
		// 暂存的增量也转发，其他副本可能已有它的依赖；重复的增量不转发
		if changed || d.doc.Pending() != pending {
			d.broadcast(crdt.UpdateFrame(update), conn)
		}
		if changed {
			metrics.DocUpdatesTotal.Inc()
			d.markDirty()
		}

	case crdt.FrameAwareness:
		d.broadcast(crdt.EncodeFrame(frame), conn)
	}
}

// setAccess 更新某个用户所有连接的只读状态
func (d *Document) setAccess(userID uint, readOnly bool) {
	for conn := range d.conns {
		if conn.identity.UserID == userID {
			conn.readOnly.Store(readOnly)
		}
	}
	d.log().WithFields(logrus.Fields{"user_id": userID, "read_only": readOnly}).Info("Document access updated")
}

// broadcast 发给除 origin 之外的所有连接
func (d *Document) broadcast(frame []byte, origin *Conn) {
	for conn := range d.conns {
		if conn == origin {
			continue
		}
		conn.Send(frame)
	}
}

// notifyEditors 给所有可编辑的连接发送状态通知
func (d *Document) notifyEditors(message string) {
	frame := crdt.StatusFrame(message)
	for conn := range d.conns {
		if !conn.ReadOnly() {
			conn.Send(frame)
		}
	}
}

// markDirty 安排一次检查点。延迟为 0 时立即写入；处于重试退避中时等待重试。
func (d *Document) markDirty() {
	d.dirty = true
	if d.failures > 0 {
		return
	}
	delay := d.registry.opts.FlushDebounce
	if delay <= 0 {
		_ = d.flush()
		return
	}
	if d.timer == nil {
		d.timer = time.NewTimer(delay)
	}
}

// flush 把扁平化后的文本与 CRDT 状态写入房间。
// 失败时保留脏标记，按指数退避安排重试，并在第一次失败时通知编辑者。
func (d *Document) flush() error {
	if !d.dirty {
		return nil
	}
	version, err := d.checkpoint()
	if err != nil {
		d.failures++
		retry := d.retryDelay()
		metrics.DocFlushesTotal.WithLabelValues("error").Inc()
		d.log().WithError(err).WithFields(logrus.Fields{"attempt": d.failures, "retry_in": retry.String()}).Error("Failed to checkpoint document")
		if d.failures == 1 {
			d.notifyEditors(statusCheckpointFailed)
		}
		d.resetTimer(retry)
		return err
	}
	if d.failures > 0 {
		d.log().WithField("attempts", d.failures+1).Info("Document checkpoint recovered")
		d.notifyEditors(statusCheckpointRecovered)
	}
	d.failures = 0
	d.dirty = false
	metrics.DocFlushesTotal.WithLabelValues("ok").Inc()
	d.log().WithField("version", version).Debug("Document checkpointed")
	return nil
}

func (d *Document) checkpoint() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.registry.opts.StoreTimeout)
	defer cancel()
	state := crdt.EncodeUpdate(d.doc.EncodeStateAsUpdate(nil))
	return d.registry.store.Checkpoint(ctx, d.roomID, d.doc.Text(), state)
}

func (d *Document) retryDelay() time.Duration {
	delay := d.registry.opts.FlushRetry
	for i := 1; i < d.failures && delay < maxFlushRetry; i++ {
		delay *= 2
	}
	if delay > maxFlushRetry {
		delay = maxFlushRetry
	}
	return delay
}

func (d *Document) resetTimer(delay time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(delay)
}

func (d *Document) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// tryEvict 在没有连接时回收文档。检查点写不进去时文档留在内存里继续重试，
// 期间新的连接照常挂载。返回 true 表示已回收。
func (d *Document) tryEvict() bool {
	if err := d.flush(); err != nil {
		if !d.evicting {
			d.log().Warn("Document eviction postponed until checkpoint succeeds")
		}
		d.evicting = true
		return false
	}
	done, ok := d.registry.beginEvict(d)
	if !ok {
		d.evicting = false
		return false
	}
	d.stop()
	d.registry.endEvict(d.slug, done)
	return true
}

// shutdown 用于进程退出：有限次重试写回，仍失败时以 1011 关闭连接，客户端重连后重新同步自己的状态
func (d *Document) shutdown() {
	for attempt := 1; d.flush() != nil && attempt < shutdownFlushAttempts; attempt++ {
		time.Sleep(d.retryDelay())
	}
	if d.dirty {
		d.log().WithField("attempts", d.failures).Error("Document closed with unsaved changes")
		for conn := range d.conns {
			conn.Close(websocket.CloseInternalServerErr, "checkpoint failed")
		}
	}
	d.stop()
}

// stop 释放租约并关闭剩余连接，调用前已完成写回
func (d *Document) stop() {
	d.stopTimer()

	ctx, cancel := context.WithTimeout(context.Background(), d.registry.opts.StoreTimeout)
	defer cancel()
	if err := d.registry.leases.ReleaseLease(ctx, d.slug, d.registry.opts.InstanceID); err != nil {
		d.log().WithError(err).Warn("Failed to release document lease")
	}
	for conn := range d.conns {
		conn.Close(websocket.CloseGoingAway, "document closed")
	}
	d.log().Info("Document evicted")
}

func (d *Document) renewLease() bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.registry.opts.StoreTimeout)
	defer cancel()
	ok, err := d.registry.leases.RenewLease(ctx, d.slug, d.registry.opts.InstanceID, d.registry.opts.LeaseTTL)
	if err != nil {
		// Redis 暂时不可用时保留文档，租约到期前还会重试
		d.log().WithError(err).Warn("Failed to renew document lease")
		return true
	}
	return ok
}

// loseLease 租约已被其他实例持有：不再写入，关闭所有连接
func (d *Document) loseLease() {
	d.stopTimer()
	d.log().WithField("dirty", d.dirty).Error("Document lease lost, closing connections")
	d.registry.forget(d)
	for conn := range d.conns {
		conn.Close(CloseOwnedElsewhere, "document owned by another instance")
	}
}

// submit 把连接收到的帧交给 actor。阻塞直到 actor 接收，从而对读端施加背压。
func (d *Document) submit(conn *Conn, frame crdt.Frame) bool {
	select {
	case d.inbox <- command{kind: cmdFrame, conn: conn, frame: frame}:
		return true
	case <-d.stopped:
		return false
	case <-conn.done:
		return false
	}
}

// call 发送命令并等待 actor 处理完成。actor 已停止时直接返回。
func (d *Document) call(cmd command) {
	cmd.reply = make(chan struct{})
	select {
	case d.inbox <- cmd:
	case <-d.stopped:
		return
	}
	select {
	case <-cmd.reply:
	case <-d.stopped:
	}
}

func (d *Document) log() *logrus.Entry {
	return logrus.WithField("room_slug", d.slug)
}
