package repository

import (
	"context"
	"time"

	"collaborative-editor/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// Create 在同一事务中创建房间和房主的成员条目。
	// slug 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room, owner *domain.RoomMember) error

	// FindBySlug 根据 slug 查找房间，并预加载成员列表。
	// 房间不存在时返回 ErrRoomNotFound。
	FindBySlug(ctx context.Context, slug string) (*domain.Room, error)

	// SlugExists 检查 slug 是否已被占用。
	SlugExists(ctx context.Context, slug string) (bool, error)

	// UpdateCodeIfVersion 仅当存储的版本号不大于 baseVersion 时写入代码，
	// 并把版本号设置为 baseVersion+1。这是一次原子的条件更新。
	// 条件不成立时返回 ErrVersionConflict。
	UpdateCodeIfVersion(ctx context.Context, roomID uint, code string, baseVersion uint64, at time.Time) error

	// CurrentVersion 读取房间当前版本号。
	CurrentVersion(ctx context.Context, roomID uint) (uint64, error)

	// Checkpoint 写入扁平化后的文档快照与编码后的 CRDT 状态，并把版本号原子地加一。
	// 返回写入后的版本号。
	Checkpoint(ctx context.Context, roomID uint, code string, state []byte, at time.Time) (uint64, error)

	// RecountActiveUsers 根据成员表重新计算 activeUsers 并写回，返回新的计数。
	RecountActiveUsers(ctx context.Context, roomID uint) (int, error)

	// DeleteExpired 删除在 now 之前过期的房间及其成员、聊天记录，返回删除的房间数。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
