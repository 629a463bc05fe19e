package domain

import "time"

// AccessLevel 房间内的权限级别
type AccessLevel string

const (
	AccessOwner  AccessLevel = "owner"
	AccessEditor AccessLevel = "editor"
	AccessRunner AccessLevel = "runner"
	AccessViewer AccessLevel = "viewer"
)

// Valid 检查是否为四个合法取值之一
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessOwner, AccessEditor, AccessRunner, AccessViewer:
		return true
	}
	return false
}

// CanEdit 只有 owner 和 editor 可以修改文档
func (a AccessLevel) CanEdit() bool {
	return a == AccessOwner || a == AccessEditor
}

// CursorPosition 编辑器中的光标位置
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Selection 选区，起止均为光标位置
type Selection struct {
	Start CursorPosition `json:"start"`
	End   CursorPosition `json:"end"`
}

// RoomMember 记录曾经加入过房间的用户。离开时只置为不活跃，不删除。
type RoomMember struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	RoomID       uint            `gorm:"uniqueIndex:idx_room_user;not null" json:"-"`
	UserID       uint            `gorm:"uniqueIndex:idx_room_user;index;not null" json:"userId"`
	SocketID     string          `gorm:"type:varchar(64);index" json:"socketId"`
	AccessLevel  AccessLevel     `gorm:"type:varchar(16);not null" json:"accessLevel"`
	IsActive     bool            `gorm:"index;not null;default:false" json:"isActive"`
	JoinedAt     time.Time       `json:"joinedAt"`
	LastActivity time.Time       `json:"lastActivity"`
	Cursor       *CursorPosition `gorm:"type:text;serializer:json" json:"cursor,omitempty"`
	Selection    *Selection      `gorm:"type:text;serializer:json" json:"selection,omitempty"`
}
