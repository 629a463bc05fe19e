package hub

import (
	"context"
	"encoding/json"
	"errors"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/metrics"
	"collaborative-editor/internal/service"

	"github.com/sirupsen/logrus"
)

// Hub 内部事件
const (
	eventDisconnect = "disconnect"
	eventPublish    = "publish"
)

type roomEvent struct {
	client  *Client
	event   string
	data    json.RawMessage
	raw     []byte
	exclude string
}

// roomActor 串行处理一个房间的全部事件，并持有订阅者集合。
type roomActor struct {
	hub     *Hub
	slug    string
	mailbox chan roomEvent
	pending int // 只由 Hub 的 goroutine 修改

	subscribers map[string]*Client
}

func newRoomActor(h *Hub, slug string) *roomActor {
	return &roomActor{
		hub:         h,
		slug:        slug,
		mailbox:     make(chan roomEvent, mailboxSize),
		subscribers: make(map[string]*Client),
	}
}

func (a *roomActor) run() {
	for {
		select {
		case ev, ok := <-a.mailbox:
			if !ok {
				return
			}
			a.handle(ev)
			a.hub.finished(actorDone{slug: a.slug, subscribers: len(a.subscribers)})
		case <-a.hub.stopChan:
			return
		}
	}
}

func (a *roomActor) handle(ev roomEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.hub.storeTimeout)
	defer cancel()

	switch ev.event {
	case eventPublish:
		a.broadcastRaw(ev.raw, ev.exclude)
		return
	case eventDisconnect:
		a.handleDisconnect(ctx, ev.client)
		return
	case dto.EventJoinRoom:
		a.record(ev.event, a.handleJoin(ctx, ev.client))
		return
	}

	// 其余事件要求连接已加入本房间
	if a.subscribers[ev.client.socketID] != ev.client {
		if ev.event != dto.EventCursorUpdate {
			ev.client.sendError(ev.event, errNotJoined)
		}
		return
	}

	var err error
	switch ev.event {
	case dto.EventLeaveRoom:
		a.handleLeave(ctx, ev.client)
	case dto.EventCodeChange:
		err = a.handleCodeChange(ctx, ev.client, ev.data)
	case dto.EventCursorUpdate:
		err = a.handleCursor(ctx, ev.client, ev.data)
	case dto.EventChatMessage:
		err = a.handleChat(ctx, ev.client, ev.data)
	case dto.EventUpdateAccess:
		err = a.handleUpdateAccess(ctx, ev.client, ev.data)
	default:
		ev.client.sendError(ev.event, errUnknownEvent)
		a.record("unknown", errUnknownEvent)
		return
	}
	a.record(ev.event, err)
}

func (a *roomActor) handleJoin(ctx context.Context, c *Client) error {
	res, err := a.hub.services.Presence.Join(ctx, a.slug, c.identity, c.socketID)
	if err != nil {
		c.sendError(dto.EventJoinRoom, err)
		return err
	}
	if !c.joinRoom(a.slug) {
		// 连接在加入过程中已断开
		a.leave(ctx, c)
		return nil
	}
	a.subscribers[c.socketID] = c

	room := res.Room
	members := make([]dto.MemberPresence, 0, len(room.Members))
	for _, m := range room.Members {
		mp := dto.MemberPresence{UserID: m.UserID, AccessLevel: m.AccessLevel, IsActive: m.IsActive}
		if cur, ok := res.Cursors[m.UserID]; ok {
			pos := cur.Position
			mp.Cursor, mp.Selection = &pos, cur.Selection
		}
		members = append(members, mp)
	}
	c.sendEvent(dto.EventRoomJoined, dto.RoomJoinedPayload{
		Slug:        room.Slug,
		Name:        room.Name,
		Language:    room.Language,
		Code:        room.Code,
		Version:     room.Version,
		SyncMode:    room.SyncMode,
		Settings:    room.Settings.Data(),
		AccessLevel: res.Member.AccessLevel,
		ActiveUsers: room.ActiveUsers,
		Members:     members,
	})

	if res.Created {
		a.broadcast(dto.EventUserJoined, dto.UserJoinedPayload{
			Slug:        a.slug,
			UserID:      c.identity.UserID,
			UserName:    c.identity.Name(),
			Avatar:      c.identity.Avatar,
			AccessLevel: res.Member.AccessLevel,
			ActiveUsers: room.ActiveUsers,
		}, "")
	}
	return nil
}

func (a *roomActor) handleLeave(ctx context.Context, c *Client) {
	c.leaveRoom(a.slug)
	a.leave(ctx, c)
	c.sendEvent(dto.EventRoomLeft, dto.RoomRef{Slug: a.slug})
}

func (a *roomActor) handleDisconnect(ctx context.Context, c *Client) {
	if a.subscribers[c.socketID] != c {
		return
	}
	a.leave(ctx, c)
}

// leave 移除订阅并更新成员条目，条目发生变化时通知其余订阅者
func (a *roomActor) leave(ctx context.Context, c *Client) {
	delete(a.subscribers, c.socketID)
	changed, err := a.hub.services.Presence.Leave(ctx, a.slug, c.identity.UserID, c.socketID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_slug": a.slug, "socket_id": c.socketID}).Warn("Failed to record leave")
		return
	}
	if changed {
		a.broadcast(dto.EventUserLeft, dto.UserLeftPayload{Slug: a.slug, UserID: c.identity.UserID}, c.socketID)
	}
}

func (a *roomActor) handleCodeChange(ctx context.Context, c *Client, data json.RawMessage) error {
	var p dto.CodeChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(dto.EventCodeChange, service.ErrInvalidPayload)
		return service.ErrInvalidPayload
	}

	switch {
	case p.Code != nil:
		change, err := a.hub.services.Version.SubmitCode(ctx, c.identity.UserID, service.SubmitCodeInput{
			Slug:    a.slug,
			Code:    *p.Code,
			Version: p.Version,
		})
		if err != nil {
			var conflict *service.VersionConflictError
			if errors.As(err, &conflict) {
				metrics.VersionConflictsTotal.Inc()
				c.sendEvent(dto.EventVersionConflict, dto.VersionConflictPayload{Slug: a.slug, CurrentVersion: conflict.CurrentVersion})
				return err
			}
			c.sendError(dto.EventCodeChange, err)
			return err
		}
		c.sendEvent(dto.EventCodeAccepted, dto.CodeAcceptedPayload{Slug: a.slug, Version: change.Version})
		a.broadcast(dto.EventCodeUpdate, dto.CodeUpdatePayload{
			Slug:    a.slug,
			UserID:  c.identity.UserID,
			Code:    change.Code,
			Version: change.Version,
		}, c.socketID)
		return nil

	case len(p.Patches) > 0:
		if _, err := a.hub.services.Version.AuthorizePatch(ctx, a.slug, c.identity.UserID); err != nil {
			c.sendError(dto.EventCodeChange, err)
			return err
		}
		a.broadcast(dto.EventCodePatch, dto.CodePatchPayload{Slug: a.slug, UserID: c.identity.UserID, Patches: p.Patches}, c.socketID)
		return nil
	}

	c.sendError(dto.EventCodeChange, service.ErrInvalidPayload)
	return service.ErrInvalidPayload
}

func (a *roomActor) handleCursor(ctx context.Context, c *Client, data json.RawMessage) error {
	var p dto.CursorUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return service.ErrSilentDrop
	}
	if err := a.hub.services.Presence.UpdateCursor(ctx, a.slug, c.identity.UserID, p.Position, p.Selection); err != nil {
		return err
	}
	a.broadcast(dto.EventCursorUpdate, dto.CursorBroadcastPayload{
		Slug:      a.slug,
		UserID:    c.identity.UserID,
		UserName:  c.identity.Name(),
		Position:  p.Position,
		Selection: p.Selection,
	}, c.socketID)
	return nil
}

func (a *roomActor) handleChat(ctx context.Context, c *Client, data json.RawMessage) error {
	var p dto.ChatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(dto.EventChatMessage, service.ErrInvalidPayload)
		return service.ErrInvalidPayload
	}
	msg, err := a.hub.services.Rooms.PostChat(ctx, a.slug, c.identity, p.Message)
	if err != nil {
		c.sendError(dto.EventChatMessage, err)
		return err
	}

	// 每个接收者单独序列化，isCurrentUser 随接收者变化
	for _, sub := range a.subscribers {
		sub.sendEvent(dto.EventChatMessage, chatPayload(a.slug, msg, sub.identity.UserID))
	}
	return nil
}

func (a *roomActor) handleUpdateAccess(ctx context.Context, c *Client, data json.RawMessage) error {
	var p dto.UpdateAccessPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(dto.EventUpdateAccess, service.ErrInvalidPayload)
		return service.ErrInvalidPayload
	}
	member, err := a.hub.services.Rooms.UpdateAccess(ctx, a.slug, c.identity.UserID, p.UserID, p.AccessLevel)
	if err != nil {
		c.sendError(dto.EventUpdateAccess, err)
		return err
	}
	if l := a.hub.services.Access; l != nil {
		l.SetAccess(a.slug, member.UserID, member.AccessLevel)
	}
	a.broadcast(dto.EventAccessUpdated, dto.AccessUpdatedPayload{
		Slug:        a.slug,
		UserID:      member.UserID,
		AccessLevel: member.AccessLevel,
	}, "")
	return nil
}

// broadcast 序列化一次后发给所有订阅者，exclude 非空时跳过该连接
func (a *roomActor) broadcast(event string, data interface{}, exclude string) {
	msg, err := dto.Encode(event, data)
	if err != nil {
		logrus.WithError(err).WithField("room_slug", a.slug).Error("Failed to encode broadcast")
		return
	}
	a.broadcastRaw(msg, exclude)
}

func (a *roomActor) broadcastRaw(msg []byte, exclude string) {
	for id, sub := range a.subscribers {
		if id == exclude {
			continue
		}
		sub.Send(msg)
	}
}

// record 统计事件处理结果
func (a *roomActor) record(event string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, service.ErrSilentDrop):
		result = "dropped"
	default:
		result = "error"
	}
	metrics.RoomEventsTotal.WithLabelValues(event, result).Inc()
}

func chatPayload(slug string, msg *domain.ChatMessage, recipient uint) dto.ChatBroadcastPayload {
	return dto.ChatBroadcastPayload{
		Slug:          slug,
		ID:            msg.ID,
		UserID:        msg.UserID,
		UserName:      msg.UserName,
		Message:       msg.Message,
		Timestamp:     msg.Timestamp,
		IsCurrentUser: msg.UserID == recipient,
	}
}
