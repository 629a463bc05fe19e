package repository

import (
	"context"
	"time"

	"collaborative-editor/internal/domain"
)

// CursorState 是缓存在 Redis 中的光标快照
type CursorState struct {
	UserID    uint                  `json:"userId"`
	Position  domain.CursorPosition `json:"position"`
	Selection *domain.Selection     `json:"selection,omitempty"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// StateRepository 定义了与房间实时状态相关的操作，由 Redis 实现。
type StateRepository interface {
	// === Cursors ===

	// SetCursor 缓存用户在房间内的光标，ttl 到期后自动清除。
	SetCursor(ctx context.Context, slug string, cursor CursorState, ttl time.Duration) error

	// GetCursors 返回房间内所有未过期的光标。
	GetCursors(ctx context.Context, slug string) (map[uint]CursorState, error)

	// GetCursor 返回单个用户的光标，不存在时返回 ErrNotFound。
	GetCursor(ctx context.Context, slug string, userID uint) (*CursorState, error)

	// ClearCursor 删除用户的光标。
	ClearCursor(ctx context.Context, slug string, userID uint) error

	// === Document ownership ===

	// AcquireLease 尝试为 holder 获取文档的独占租约。已被其他 holder 持有时返回 false。
	// 同一 holder 重复获取视为续约。
	AcquireLease(ctx context.Context, slug, holder string, ttl time.Duration) (bool, error)

	// RenewLease 续约，仅当租约仍属于 holder 时成功。
	RenewLease(ctx context.Context, slug, holder string, ttl time.Duration) (bool, error)

	// ReleaseLease 释放租约，仅当租约仍属于 holder 时删除。
	ReleaseLease(ctx context.Context, slug, holder string) error

	// === Instances ===

	// Heartbeat 刷新进程实例的存活标记。
	Heartbeat(ctx context.Context, instanceID string, ttl time.Duration) error

	// InstanceAlive 判断进程实例的存活标记是否仍然存在。
	InstanceAlive(ctx context.Context, instanceID string) (bool, error)
}
