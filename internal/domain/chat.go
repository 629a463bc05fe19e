package domain

import "time"

// ChatMessage 房间聊天记录，只追加，按 ID 排序。
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"index;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	UserName  string    `gorm:"type:varchar(191)" json:"userName"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// MaxChatMessageLength 单条聊天消息的最大字符数
const MaxChatMessageLength = 2000
