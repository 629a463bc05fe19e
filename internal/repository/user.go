package repository

import (
	"context"

	"collaborative-editor/internal/domain"
)

// UserRepository 定义了用户资料的检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户。
	// 如果用户不存在，返回 ErrUserNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByUsername 根据用户名查找用户。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// Save 保存用户信息（用于测试数据与开发工具）。
	Save(ctx context.Context, user *domain.User) error
}
