package db

import (
	"fmt"

	"gorm.io/gorm"
)

// CreateMessageIndexes создает составные индексы для запросов тредов:
// AutoMigrate создает только одиночные индексы по полям модели
func CreateMessageIndexes(db *gorm.DB) error {
	indexes := map[string]string{
		"idx_messages_direct_thread": "CREATE INDEX IF NOT EXISTS idx_messages_direct_thread ON messages (sender_id, receiver_id, created_at)",
		"idx_messages_room_thread":   "CREATE INDEX IF NOT EXISTS idx_messages_room_thread ON messages (room, created_at)",
		"idx_messages_inbox":         "CREATE INDEX IF NOT EXISTS idx_messages_inbox ON messages (receiver_id, created_at)",
	}
	for name, createIndexSQL := range indexes {
		if err := db.Exec(createIndexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}
