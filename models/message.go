package models

import (
	"fmt"
	"time"
)

// Message представляет сообщение в диалоге или комнате
type Message struct {
	ID              int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Room            *string      `gorm:"size:100;index" json:"room"`
	SenderID        int64        `gorm:"column:sender_id;not null;index" json:"sender_id"`
	ReceiverID      *int64       `gorm:"column:receiver_id;index" json:"receiver_id"`
	Text            *string      `gorm:"type:text" json:"text"`
	ClientMessageID *string      `gorm:"size:36;uniqueIndex" json:"client_message_id,omitempty"`
	DeliveredAt     *time.Time   `json:"delivered_at"`
	ReadAt          *time.Time   `json:"read_at"`
	CreatedAt       time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
	Files           []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"files"`
}

// TableName возвращает имя таблицы для модели Message
func (Message) TableName() string {
	return "messages"
}

// Attachment представляет файл, прикрепленный к сообщению.
// Создается только вместе с сообщением, сам файл уже лежит в хранилище
type Attachment struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID    int64  `gorm:"column:message_id;not null;index" json:"message_id"`
	Filepath     string `gorm:"size:255;not null" json:"filepath"`
	OriginalName string `gorm:"size:255;not null" json:"original_name"`
	MimeType     string `gorm:"size:100;not null" json:"mime_type"`
	SizeBytes    int64  `gorm:"not null" json:"size_bytes"`
}

func (Attachment) TableName() string {
	return "message_files"
}

// UserChannel возвращает имя персонального канала пользователя
func UserChannel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// RoomChannel возвращает имя канала комнаты
func RoomChannel(room string) string {
	return "room:" + room
}

// Channels возвращает набор каналов доставки для сообщения:
// комната (если есть), получатель (если есть) и всегда отправитель,
// чтобы другие сессии отправителя тоже получили эхо. Без дублей
func (m *Message) Channels() []string {
	channels := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(ch string) {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			channels = append(channels, ch)
		}
	}
	if m.Room != nil && *m.Room != "" {
		add(RoomChannel(*m.Room))
	}
	if m.ReceiverID != nil {
		add(UserChannel(*m.ReceiverID))
	}
	add(UserChannel(m.SenderID))
	return channels
}
