package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

// GormMemberRepository 是 MemberRepository 接口的 GORM 实现
type GormMemberRepository struct {
	db *gorm.DB
}

// NewGormMemberRepository 创建 GormMemberRepository 实例
func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMemberRepository")
	}
	return &GormMemberRepository{db: db}
}

// Find 查找成员条目
func (r *GormMemberRepository) Find(ctx context.Context, roomID, userID uint) (*domain.RoomMember, error) {
	var member domain.RoomMember
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMemberNotFound
		}
		return nil, fmt.Errorf("gorm: find member (room %d, user %d): %w", roomID, userID, err)
	}
	return &member, nil
}

// Create 新建成员条目
func (r *GormMemberRepository) Create(ctx context.Context, member *domain.RoomMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create member (room %d, user %d): %w", member.RoomID, member.UserID, err)
	}
	return nil
}

// Activate 重新激活已有条目
func (r *GormMemberRepository) Activate(ctx context.Context, roomID, userID uint, socketID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{
			"is_active":     true,
			"socket_id":     socketID,
			"last_activity": at,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: activate member (room %d, user %d): %w", roomID, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrMemberNotFound
	}
	return nil
}

// DeactivateIfSocket 只有 socket 完全匹配且仍活跃时才会修改
func (r *GormMemberRepository) DeactivateIfSocket(ctx context.Context, roomID, userID uint, socketID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ? AND socket_id = ? AND is_active = ?", roomID, userID, socketID, true).
		Updates(map[string]interface{}{
			"is_active":     false,
			"last_activity": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("gorm: deactivate member (room %d, user %d): %w", roomID, userID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateAccessLevel 修改权限级别
func (r *GormMemberRepository) UpdateAccessLevel(ctx context.Context, roomID, userID uint, level domain.AccessLevel) error {
	result := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("access_level", level)
	if result.Error != nil {
		return fmt.Errorf("gorm: update access level (room %d, user %d): %w", roomID, userID, result.Error)
	}
	return nil
}

// SaveCursor 保存光标与选区
func (r *GormMemberRepository) SaveCursor(ctx context.Context, roomID, userID uint, cursor *domain.CursorPosition, selection *domain.Selection) error {
	err := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Select("Cursor", "Selection").
		Updates(&domain.RoomMember{Cursor: cursor, Selection: selection}).Error
	if err != nil {
		return fmt.Errorf("gorm: save cursor (room %d, user %d): %w", roomID, userID, err)
	}
	return nil
}

// ListActive 列出全部活跃条目
func (r *GormMemberRepository) ListActive(ctx context.Context) ([]domain.RoomMember, error) {
	var members []domain.RoomMember
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("gorm: list active members: %w", err)
	}
	return members, nil
}
