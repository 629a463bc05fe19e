// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// User 用户资料。由外部身份系统创建，这里只读。
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	DisplayName string    `gorm:"type:varchar(191)" json:"displayName"`
	Avatar      string    `gorm:"type:varchar(512)" json:"avatar"`
	Email       string    `gorm:"type:varchar(191);index" json:"email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Identity 是凭证校验通过后得到的调用者身份
type Identity struct {
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// IdentityFromUser 由用户资料构造身份
func IdentityFromUser(u *User) Identity {
	return Identity{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
	}
}

// Name 用于展示的名字，优先使用 DisplayName
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}
