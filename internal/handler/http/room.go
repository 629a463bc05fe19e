package http

import (
	"net/http"
	"strconv"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Publisher 把消息推送给房间 socket 上的订阅者
type Publisher interface {
	Publish(slug string, message []byte, excludeSocket string)
}

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService    *service.RoomService
	versionService *service.VersionService
	publisher      Publisher
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, versionService *service.VersionService, publisher Publisher) *RoomHandler {
	if roomService == nil || versionService == nil || publisher == nil {
		panic("dependencies cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, versionService: versionService, publisher: publisher}
}

// CreateRoomRequest 创建房间的请求体
type CreateRoomRequest struct {
	Name     string               `json:"name" binding:"max=191"`
	Language string               `json:"language" binding:"max=32"`
	IsPublic bool                 `json:"isPublic"`
	SyncMode domain.SyncMode      `json:"syncMode"`
	Settings *domain.RoomSettings `json:"settings"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	identity, ok := mustIdentity(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", identity.UserID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), identity, service.CreateRoomParams{
		Name:     req.Name,
		Language: req.Language,
		IsPublic: req.IsPublic,
		SyncMode: req.SyncMode,
		Settings: req.Settings,
	})
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("room_slug", room.Slug).Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusCreated, room)
}

// GetRoom 返回房间状态。私有房间对非成员返回 404。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	identity, ok := mustIdentity(c)
	if !ok {
		return
	}
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("slug"), identity.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// SubmitCodeRequest 整文档提交的请求体
type SubmitCodeRequest struct {
	Code    *string `json:"code" binding:"required"`
	Version *uint64 `json:"version"`
}

// SubmitCode 以版本号为条件写入整个文档，成功后通知房间 socket 上的订阅者。
func (h *RoomHandler) SubmitCode(c *gin.Context) {
	identity, ok := mustIdentity(c)
	if !ok {
		return
	}
	slug := c.Param("slug")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": identity.UserID, "room_slug": slug})

	var req SubmitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.SubmitCode: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: code is required")
		return
	}

	// 先按可见性规则加载，私有房间对非成员表现为不存在
	if _, err := h.roomService.GetRoom(c.Request.Context(), slug, identity.UserID); err != nil {
		HandleServiceError(c, err)
		return
	}

	change, err := h.versionService.SubmitCode(c.Request.Context(), identity.UserID, service.SubmitCodeInput{
		Slug:    slug,
		Code:    *req.Code,
		Version: req.Version,
	})
	if err != nil {
		logCtx.WithError(err).Info("Handler.SubmitCode: Code change rejected")
		HandleServiceError(c, err)
		return
	}

	msg, err := dto.Encode(dto.EventCodeUpdate, dto.CodeUpdatePayload{
		Slug:    slug,
		UserID:  identity.UserID,
		Code:    change.Code,
		Version: change.Version,
	})
	if err != nil {
		logCtx.WithError(err).Error("Handler.SubmitCode: Failed to encode code update")
	} else {
		h.publisher.Publish(slug, msg, "")
	}

	SuccessResponse(c, http.StatusOK, dto.CodeAcceptedPayload{Slug: slug, Version: change.Version})
}

// ListChat 返回房间最近的聊天记录，limit 查询参数可选
func (h *RoomHandler) ListChat(c *gin.Context) {
	identity, ok := mustIdentity(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.roomService.ListChat(c.Request.Context(), c.Param("slug"), identity.UserID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": msgs})
}
