// Package dto 定义房间 socket 上收发的消息结构。
// 每条消息都是 {"event": ..., "data": {...}} 形式的信封。
package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"collaborative-editor/internal/domain"
)

// 客户端发送的事件
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventCodeChange   = "code-change"
	EventCursorUpdate = "cursor-update"
	EventChatMessage  = "chat-message"
	EventUpdateAccess = "update-access"
)

// 服务端发送的事件
const (
	EventRoomJoined      = "room-joined"
	EventRoomLeft        = "room-left"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventCodeAccepted    = "code-accepted"
	EventCodeUpdate      = "code-update"
	EventCodePatch       = "code-patch"
	EventVersionConflict = "version-conflict"
	EventAccessUpdated   = "access-updated"
	EventError           = "error"
)

// Envelope 消息信封
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode 把事件与数据序列化为信封
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode 解析信封，不解析 Data
func Decode(message []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, fmt.Errorf("missing event name")
	}
	return &env, nil
}

// RoomRef 所有入站事件都携带的房间标识
type RoomRef struct {
	Slug string `json:"slug"`
}

// --- 入站 ---

type CodeChangePayload struct {
	Slug    string          `json:"slug"`
	Code    *string         `json:"code,omitempty"`
	Version *uint64         `json:"version,omitempty"`
	Patches json.RawMessage `json:"patches,omitempty"`
}

type CursorUpdatePayload struct {
	Slug      string                `json:"slug"`
	Position  domain.CursorPosition `json:"position"`
	Selection *domain.Selection     `json:"selection,omitempty"`
}

type ChatMessagePayload struct {
	Slug    string `json:"slug"`
	Message string `json:"message"`
}

type UpdateAccessPayload struct {
	Slug        string             `json:"slug"`
	UserID      uint               `json:"userId"`
	AccessLevel domain.AccessLevel `json:"accessLevel"`
}

// --- 出站 ---

// MemberPresence 房间成员的在线状态
type MemberPresence struct {
	UserID      uint                   `json:"userId"`
	AccessLevel domain.AccessLevel     `json:"accessLevel"`
	IsActive    bool                   `json:"isActive"`
	Cursor      *domain.CursorPosition `json:"cursor,omitempty"`
	Selection   *domain.Selection      `json:"selection,omitempty"`
}

// RoomJoinedPayload 加入成功后发给加入者的房间状态
type RoomJoinedPayload struct {
	Slug        string              `json:"slug"`
	Name        string              `json:"name"`
	Language    string              `json:"language"`
	Code        string              `json:"code"`
	Version     uint64              `json:"version"`
	SyncMode    domain.SyncMode     `json:"syncMode"`
	Settings    domain.RoomSettings `json:"settings"`
	AccessLevel domain.AccessLevel  `json:"accessLevel"`
	ActiveUsers int                 `json:"activeUsers"`
	Members     []MemberPresence    `json:"members"`
}

type UserJoinedPayload struct {
	Slug        string             `json:"slug"`
	UserID      uint               `json:"userId"`
	UserName    string             `json:"userName"`
	Avatar      string             `json:"avatar,omitempty"`
	AccessLevel domain.AccessLevel `json:"accessLevel"`
	ActiveUsers int                `json:"activeUsers"`
}

type UserLeftPayload struct {
	Slug   string `json:"slug"`
	UserID uint   `json:"userId"`
}

type CodeAcceptedPayload struct {
	Slug    string `json:"slug"`
	Version uint64 `json:"version"`
}

type CodeUpdatePayload struct {
	Slug    string `json:"slug"`
	UserID  uint   `json:"userId"`
	Code    string `json:"code"`
	Version uint64 `json:"version"`
}

type CodePatchPayload struct {
	Slug    string          `json:"slug"`
	UserID  uint            `json:"userId"`
	Patches json.RawMessage `json:"patches"`
}

type VersionConflictPayload struct {
	Slug           string `json:"slug"`
	CurrentVersion uint64 `json:"currentVersion"`
}

type CursorBroadcastPayload struct {
	Slug      string                `json:"slug"`
	UserID    uint                  `json:"userId"`
	UserName  string                `json:"userName"`
	Position  domain.CursorPosition `json:"position"`
	Selection *domain.Selection     `json:"selection,omitempty"`
}

type ChatBroadcastPayload struct {
	Slug          string    `json:"slug"`
	ID            uint      `json:"id"`
	UserID        uint      `json:"userId"`
	UserName      string    `json:"userName"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	IsCurrentUser bool      `json:"isCurrentUser"`
}

type AccessUpdatedPayload struct {
	Slug        string             `json:"slug"`
	UserID      uint               `json:"userId"`
	AccessLevel domain.AccessLevel `json:"accessLevel"`
}

// ErrorPayload 只发给出错的连接
type ErrorPayload struct {
	Event    string `json:"event,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Required string `json:"required,omitempty"`
}
