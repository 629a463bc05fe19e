package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collaborative-editor/internal/domain"
)

// GormChatRepository 是 ChatRepository 接口的 GORM 实现
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository 创建 GormChatRepository 实例
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	if db == nil {
		panic("database connection cannot be nil for GormChatRepository")
	}
	return &GormChatRepository{db: db}
}

// Append 追加聊天消息
func (r *GormChatRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: append chat message to room %d: %w", msg.RoomID, err)
	}
	return nil
}

// ListRecent 取最近 limit 条，返回时按 ID 正序
func (r *GormChatRepository) ListRecent(ctx context.Context, roomID uint, limit int) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list chat of room %d: %w", roomID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
