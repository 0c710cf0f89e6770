package services

import (
	"sync"
	"testing"
	"time"

	"agrochat/db"
	"agrochat/models"

	"github.com/brianvoe/gofakeit/v7"
)

// setupTestDB инициализирует in-memory SQLite и чистит таблицы
func setupTestDB(t *testing.T) {
	t.Helper()
	if db.ORM == nil {
		if err := db.ConnectTestDB(); err != nil {
			t.Fatalf("Failed to setup test database: %v", err)
		}
	}
	db.ORM.Exec("DELETE FROM message_files")
	db.ORM.Exec("DELETE FROM messages")
	db.ORM.Exec("DELETE FROM users")
}

// createTestUser создает пользователя справочника и возвращает его ID
func createTestUser(t *testing.T) int64 {
	t.Helper()
	user := models.User{
		Nickname:  gofakeit.Username(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Role:      models.FARMER,
	}
	if err := db.ORM.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user.ID
}

// insertTestMessage пишет сообщение напрямую, минуя сервис
// (для тестов порядка сортировки с явными created_at)
func insertTestMessage(t *testing.T, sender int64, receiver *int64, room *string, text string, createdAt time.Time) models.Message {
	t.Helper()
	msg := models.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Room:       room,
		Text:       &text,
		CreatedAt:  createdAt,
	}
	if err := db.ORM.Create(&msg).Error; err != nil {
		t.Fatalf("Failed to insert test message: %v", err)
	}
	return msg
}

// recordingBroker запоминает публикации вместо доставки по сокетам
type recordingBroker struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	channels []string
	event    Event
}

func (b *recordingBroker) Publish(channels []string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{channels: channels, event: event})
}

func (b *recordingBroker) events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedEvent, len(b.published))
	copy(out, b.published)
	return out
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
