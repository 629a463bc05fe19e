package repository

import (
	"context"

	"collaborative-editor/internal/domain"
)

// ChatRepository 房间聊天记录，只追加。
type ChatRepository interface {
	// Append 追加一条消息，成功后 msg.ID 被填充。
	Append(ctx context.Context, msg *domain.ChatMessage) error

	// ListRecent 返回最近的 limit 条消息，按时间正序。
	ListRecent(ctx context.Context, roomID uint, limit int) ([]domain.ChatMessage, error)
}
