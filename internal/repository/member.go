package repository

import (
	"context"
	"time"

	"collaborative-editor/internal/domain"
)

// MemberRepository 定义了房间成员条目的操作。
type MemberRepository interface {
	// Find 查找成员条目，不存在时返回 ErrMemberNotFound。
	Find(ctx context.Context, roomID, userID uint) (*domain.RoomMember, error)

	// Create 新建成员条目，(room, user) 重复时返回 ErrDuplicateEntry。
	Create(ctx context.Context, member *domain.RoomMember) error

	// Activate 把已有条目置为活跃，并刷新 socket 与活动时间。
	Activate(ctx context.Context, roomID, userID uint, socketID string, at time.Time) error

	// DeactivateIfSocket 仅当条目记录的 socket 与给定 socket 完全一致时置为不活跃。
	// 返回是否有行被修改。
	DeactivateIfSocket(ctx context.Context, roomID, userID uint, socketID string, at time.Time) (bool, error)

	// UpdateAccessLevel 修改成员的权限级别。
	UpdateAccessLevel(ctx context.Context, roomID, userID uint, level domain.AccessLevel) error

	// SaveCursor 保存成员最近一次的光标与选区。
	SaveCursor(ctx context.Context, roomID, userID uint, cursor *domain.CursorPosition, selection *domain.Selection) error

	// ListActive 列出所有活跃的成员条目。
	ListActive(ctx context.Context) ([]domain.RoomMember, error)
}
