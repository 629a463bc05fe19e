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

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Create 在事务中创建房间和房主条目
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room, owner *domain.RoomMember) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(room).Error; err != nil {
			return err
		}
		owner.RoomID = room.ID
		return tx.Create(owner).Error
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (slug: %s): %w", room.Slug, err)
	}
	room.Members = []domain.RoomMember{*owner}
	return nil
}

// FindBySlug 实现根据 slug 查找房间（含成员）
func (r *GormRoomRepository) FindBySlug(ctx context.Context, slug string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Preload("Members").Where("slug = ?", slug).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by slug '%s': %w", slug, err)
	}
	return &room, nil
}

// SlugExists 实现检查 slug 是否存在
func (r *GormRoomRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("slug = ?", slug).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by slug '%s': %w", slug, err)
	}
	return count > 0, nil
}

// UpdateCodeIfVersion 以单条条件 UPDATE 实现 compare-and-set
func (r *GormRoomRepository) UpdateCodeIfVersion(ctx context.Context, roomID uint, code string, baseVersion uint64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND version <= ?", roomID, baseVersion).
		Updates(map[string]interface{}{
			"code":          code,
			"version":       baseVersion + 1,
			"last_activity": at,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: update code of room %d at version %d: %w", roomID, baseVersion, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

// CurrentVersion 读取房间当前版本号
func (r *GormRoomRepository) CurrentVersion(ctx context.Context, roomID uint) (uint64, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Select("id", "version").First(&room, roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, repository.ErrRoomNotFound
		}
		return 0, fmt.Errorf("gorm: read version of room %d: %w", roomID, err)
	}
	return room.Version, nil
}

// Checkpoint 写入快照并原子地把版本号加一
func (r *GormRoomRepository) Checkpoint(ctx context.Context, roomID uint, code string, state []byte, at time.Time) (uint64, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Room{}).Where("id = ?", roomID).Updates(map[string]interface{}{
			"code":          code,
			"doc_state":     state,
			"version":       gorm.Expr("version + ?", 1),
			"last_activity": at,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrRoomNotFound
		}
		return tx.Select("id", "version").First(&room, roomID).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("gorm: checkpoint room %d: %w", roomID, err)
	}
	return room.Version, nil
}

// RecountActiveUsers 用子查询在一条语句内重算 activeUsers
func (r *GormRoomRepository) RecountActiveUsers(ctx context.Context, roomID uint) (int, error) {
	db := r.db.WithContext(ctx)
	activeCount := db.Model(&domain.RoomMember{}).Select("count(*)").Where("room_id = ? AND is_active = ?", roomID, true)
	if err := db.Model(&domain.Room{}).Where("id = ?", roomID).UpdateColumn("active_users", activeCount).Error; err != nil {
		return 0, fmt.Errorf("gorm: recount active users of room %d: %w", roomID, err)
	}
	var room domain.Room
	if err := db.Select("id", "active_users").First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, repository.ErrRoomNotFound
		}
		return 0, fmt.Errorf("gorm: read active users of room %d: %w", roomID, err)
	}
	return room.ActiveUsers, nil
}

// DeleteExpired 删除过期房间及其附属数据
func (r *GormRoomRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&domain.Room{}).Where("expires_at < ?", now).Limit(500).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("room_id IN ?", ids).Delete(&domain.RoomMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id IN ?", ids).Delete(&domain.ChatMessage{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&domain.Room{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("gorm: delete expired rooms: %w", err)
	}
	return deleted, nil
}
