package http

import (
	"errors"
	"net/http"

	"collaborative-editor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	var conflict *service.VersionConflictError
	var permErr *service.PermissionError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "currentVersion": conflict.CurrentVersion})
	case errors.As(err, &permErr):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "required": permErr.Required})
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrPrivateRoom):
		// 私有房间对非成员表现为不存在
		ErrorResponse(c, http.StatusNotFound, service.ErrRoomNotFound.Error())
	case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrPermissionDenied):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, service.ErrInvalidAccessLevel),
		errors.Is(err, service.ErrOwnerAccessImmutable):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSyncModeMismatch):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPersistence):
		ErrorResponse(c, http.StatusServiceUnavailable, service.ErrPersistence.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
