package service

import (
	"fmt"

	"collaborative-editor/internal/domain"
)

// Operation 需要鉴权的房间操作
type Operation string

const (
	OpJoin         Operation = "join"
	OpEdit         Operation = "edit"
	OpChat         Operation = "chat"
	OpCursor       Operation = "cursor"
	OpUpdateAccess Operation = "update-access"
)

// Authorize 判断用户能否在房间内执行操作。纯函数，不修改任何状态。
// room 需要预加载成员列表。
func Authorize(room *domain.Room, userID uint, op Operation) error {
	member := room.Member(userID)
	switch op {
	case OpJoin:
		if room.IsPublic || room.IsOwner(userID) || member != nil {
			return nil
		}
		return ErrPrivateRoom
	case OpEdit:
		if member == nil {
			return ErrNotMember
		}
		if !member.AccessLevel.CanEdit() {
			return &PermissionError{Op: op, Required: string(domain.AccessEditor)}
		}
		return nil
	case OpChat:
		if member == nil {
			return ErrNotMember
		}
		return nil
	case OpCursor:
		// 光标事件在竞态下很常见，失败时静默丢弃
		if member == nil {
			return ErrSilentDrop
		}
		return nil
	case OpUpdateAccess:
		if !room.IsOwner(userID) {
			return &PermissionError{Op: op, Required: string(domain.AccessOwner)}
		}
		return nil
	}
	return ErrPermissionDenied
}

// ValidateAccessChange 校验一次权限变更。
// 返回 noop=true 表示请求合法但不需要写入 (把房主设置为 owner)。
func ValidateAccessChange(room *domain.Room, actingUserID, targetUserID uint, level domain.AccessLevel) (noop bool, err error) {
	if err := Authorize(room, actingUserID, OpUpdateAccess); err != nil {
		return false, err
	}
	if !level.Valid() {
		return false, ErrInvalidAccessLevel
	}
	if room.IsOwner(targetUserID) {
		if level == domain.AccessOwner {
			return true, nil
		}
		return false, ErrOwnerAccessImmutable
	}
	if level == domain.AccessOwner {
		// 每个房间只能有一个 owner
		return false, fmt.Errorf("%w: owner cannot be granted", ErrInvalidAccessLevel)
	}
	target := room.Member(targetUserID)
	if target == nil {
		return false, ErrNotMember
	}
	return target.AccessLevel == level, nil
}
