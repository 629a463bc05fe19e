package hub

import (
	"errors"

	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/service"
)

var (
	errServerBusy   = errors.New("server busy, please retry")
	errRateLimited  = errors.New("too many messages")
	errNotJoined    = errors.New("join the room first")
	errUnknownEvent = errors.New("unknown event")
)

// errorPayload 把服务层错误转换为客户端可识别的错误码
func errorPayload(event string, err error) dto.ErrorPayload {
	payload := dto.ErrorPayload{Event: event, Code: "internal_error", Message: "Internal server error"}

	var permErr *service.PermissionError
	switch {
	case errors.As(err, &permErr):
		payload.Code = "permission_denied"
		payload.Message = permErr.Error()
		payload.Required = permErr.Required
	case errors.Is(err, service.ErrRoomNotFound):
		payload.Code = "room_not_found"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrPrivateRoom):
		payload.Code = "private_room"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrNotMember), errors.Is(err, errNotJoined):
		payload.Code = "not_member"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrPermissionDenied):
		payload.Code = "permission_denied"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, errUnknownEvent):
		payload.Code = "invalid_payload"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrInvalidAccessLevel), errors.Is(err, service.ErrOwnerAccessImmutable):
		payload.Code = "invalid_access_level"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrSyncModeMismatch):
		payload.Code = "sync_mode_mismatch"
		payload.Message = err.Error()
	case errors.Is(err, service.ErrPersistence):
		payload.Code = "persistence_failed"
		payload.Message = service.ErrPersistence.Error()
	case errors.Is(err, errServerBusy):
		payload.Code = "server_busy"
		payload.Message = err.Error()
	case errors.Is(err, errRateLimited):
		payload.Code = "rate_limited"
		payload.Message = err.Error()
	}
	return payload
}
