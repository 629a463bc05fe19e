package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SyncMode 决定房间使用哪一种同步通道。创建后不可更改。
type SyncMode string

const (
	// SyncModeVersion 整文档提交 + 版本号乐观并发控制
	SyncModeVersion SyncMode = "version"
	// SyncModeCRDT 二进制增量 + 服务端权威 CRDT 文档
	SyncModeCRDT SyncMode = "crdt"
)

// Valid 检查同步模式是否为已知值
func (m SyncMode) Valid() bool {
	return m == SyncModeVersion || m == SyncModeCRDT
}

// RoomSettings 只影响客户端行为，服务端不据此做决策。
type RoomSettings struct {
	ReadOnly bool   `json:"readOnly"`
	AutoSave bool   `json:"autoSave"`
	Theme    string `json:"theme"`
	TabSize  int    `json:"tabSize"`
	WordWrap bool   `json:"wordWrap"`
}

// DefaultRoomSettings 返回新房间的默认设置
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AutoSave: true,
		Theme:    "vs-dark",
		TabSize:  2,
	}
}

// Room 表示一个协作编辑会话，通过 slug 寻址。
type Room struct {
	ID           uint                             `gorm:"primaryKey" json:"id"`
	Slug         string                           `gorm:"type:varchar(64);uniqueIndex:idx_slug;not null" json:"slug"`
	Name         string                           `gorm:"type:varchar(191)" json:"name"`
	Language     string                           `gorm:"type:varchar(32)" json:"language"`
	OwnerID      uint                             `gorm:"index;not null" json:"ownerId"`
	Code         string                           `gorm:"type:longtext" json:"code"`
	Version      uint64                           `gorm:"not null;default:0" json:"version"`     // 只增不减
	DocState     []byte                           `gorm:"type:longblob" json:"-"`                // CRDT 完整状态，仅 crdt 模式使用
	IsPublic     bool                             `gorm:"not null;default:false" json:"isPublic"`
	SyncMode     SyncMode                         `gorm:"type:varchar(16);not null;default:'version'" json:"syncMode"`
	ActiveUsers  int                              `gorm:"not null;default:0" json:"activeUsers"` // 由成员表派生
	Settings     datatypes.JSONType[RoomSettings] `json:"settings"`
	ExpiresAt    time.Time                        `gorm:"index" json:"expiresAt"`
	LastActivity time.Time                        `json:"lastActivity"`
	CreatedAt    time.Time                        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time                        `gorm:"autoUpdateTime" json:"updatedAt"`

	Members []RoomMember `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// IsOwner 判断用户是否为房主
func (r *Room) IsOwner(userID uint) bool {
	return r.OwnerID == userID
}

// Member 返回用户的成员条目，不存在则返回 nil。
// 需要预先加载 Members。
func (r *Room) Member(userID uint) *RoomMember {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i]
		}
	}
	return nil
}

// Expired 判断房间在给定时刻是否已过期
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
