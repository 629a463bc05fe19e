package service

import (
	"errors"
	"fmt"

	"collaborative-editor/internal/repository"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRoomNotFound         = errors.New("room not found")
	ErrPrivateRoom          = errors.New("private room")
	ErrNotMember            = errors.New("not a member of this room")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrInvalidAccessLevel   = errors.New("invalid access level")
	ErrOwnerAccessImmutable = errors.New("owner access level cannot be changed")
	ErrVersionConflict      = errors.New("version conflict")
	ErrSyncModeMismatch     = errors.New("room uses a different sync mode")
	ErrPersistence          = errors.New("failed to persist change, please retry")
	ErrInternalServer       = errors.New("internal server error")

	// ErrSilentDrop 表示操作被丢弃且不需要通知客户端 (光标等尽力而为的事件)
	ErrSilentDrop = errors.New("dropped")
)

// PermissionError 说明缺少的能力
type PermissionError struct {
	Op       Operation
	Required string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s requires %s access", e.Op, e.Required)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// VersionConflictError 携带权威版本号，客户端据此 rebase 后重试
type VersionConflictError struct {
	CurrentVersion uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.CurrentVersion)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// mapRepoError 把仓库层错误映射为服务层错误。
// notFound 是该上下文中"记录不存在"对应的业务错误。
func mapRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) && notFound != nil {
		return notFound
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
