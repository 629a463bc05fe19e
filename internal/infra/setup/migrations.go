package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collaborative-editor/internal/domain"
)

// MigrateDB 迁移所有表。返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// 顺序有意义：成员和聊天表引用 rooms.id
	models := []struct {
		table string
		model interface{}
	}{
		{"users", &domain.User{}},
		{"rooms", &domain.Room{}},
		{"room_members", &domain.RoomMember{}},
		{"chat_messages", &domain.ChatMessage{}},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m.model); err != nil {
			logrus.Errorf("Failed to auto-migrate %s table: %v", m.table, err)
			return fmt.Errorf("failed to migrate %s table: %w", m.table, err)
		}
		logrus.Debugf("Table %s checked/updated", m.table)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
