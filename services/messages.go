package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agrochat/db"
	"agrochat/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileDescriptor описывает уже загруженный файл. Сервис загрузки кладет
// файл в хранилище и возвращает дескриптор, здесь он сохраняется как есть
type FileDescriptor struct {
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

type CreateMessageInput struct {
	SenderID        int64            `json:"sender_id"`
	ReceiverID      *int64           `json:"receiver_id"`
	Room            *string          `json:"room"`
	Text            *string          `json:"text"`
	ClientMessageID *string          `json:"client_message_id"`
	Files           []FileDescriptor `json:"files"`
}

// MessageService - хранилище сообщений и переходы статусов доставки.
// Брокер инжектируется интерфейсом, чтобы тестировать без живых сокетов
type MessageService struct {
	broker   Broker
	counters *CounterService
}

func NewMessageService(broker Broker, counters *CounterService) *MessageService {
	return &MessageService{broker: broker, counters: counters}
}

// validate проверяет запрос до любых записей в базу и приводит
// пустые опциональные поля к nil, чтобы в базе не было пустых строк
func (s *MessageService) validate(input *CreateMessageInput) error {
	if input.ReceiverID != nil && *input.ReceiverID == 0 {
		input.ReceiverID = nil
	}
	if input.Room != nil && *input.Room == "" {
		input.Room = nil
	}
	if input.Text != nil && *input.Text == "" {
		input.Text = nil
	}
	if input.ClientMessageID != nil && *input.ClientMessageID == "" {
		input.ClientMessageID = nil
	}
	if input.SenderID == 0 {
		return NewValidationError("sender_id", "is required")
	}
	if input.ReceiverID == nil && input.Room == nil {
		return NewValidationError("target", "provide receiver_id (DM) or room (group)")
	}
	if input.Text == nil && len(input.Files) == 0 {
		return NewValidationError("content", "provide text or at least one file")
	}
	for i, f := range input.Files {
		if f.Path == "" || f.OriginalName == "" || f.MimeType == "" {
			return NewValidationError(fmt.Sprintf("files[%d]", i), "path, original_name and mime_type are required")
		}
		if f.SizeBytes < 0 {
			return NewValidationError(fmt.Sprintf("files[%d].size_bytes", i), "must be non-negative")
		}
	}
	if input.ClientMessageID != nil {
		if _, err := uuid.Parse(*input.ClientMessageID); err != nil {
			return NewValidationError("client_message_id", "must be a valid UUID")
		}
	}
	return nil
}

// userExists проверяет наличие пользователя в справочнике
func userExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := db.GetReadOnlyDB(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	return count > 0, nil
}

// Create сохраняет сообщение вместе с вложениями в одной транзакции
// и отдает его брокеру. Возвращает created=false, если запрос оказался
// повтором по client_message_id - тогда новая строка не создается
func (s *MessageService) Create(ctx context.Context, input CreateMessageInput) (*models.Message, bool, error) {
	if err := s.validate(&input); err != nil {
		return nil, false, err
	}

	exists, err := userExists(ctx, input.SenderID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, NewNotFoundError("sender", input.SenderID)
	}
	if input.ReceiverID != nil {
		exists, err := userExists(ctx, *input.ReceiverID)
		if err != nil {
			return nil, false, err
		}
		if !exists {
			return nil, false, NewNotFoundError("receiver", *input.ReceiverID)
		}
	}

	// Повторная отправка с тем же ключом идемпотентности возвращает
	// уже сохраненное сообщение без новой записи и без fan-out
	if input.ClientMessageID != nil {
		existing, err := findByClientID(ctx, *input.ClientMessageID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	msg := models.Message{
		SenderID:        input.SenderID,
		ReceiverID:      input.ReceiverID,
		Room:            input.Room,
		Text:            input.Text,
		ClientMessageID: input.ClientMessageID,
	}

	// Сообщение и вложения пишутся в одной транзакции: упавший процесс
	// не должен оставить сообщение без присланных с ним файлов
	err = db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		if len(input.Files) == 0 {
			return nil
		}
		attachments := make([]models.Attachment, 0, len(input.Files))
		for _, f := range input.Files {
			attachments = append(attachments, models.Attachment{
				MessageID:    msg.ID,
				Filepath:     f.Path,
				OriginalName: f.OriginalName,
				MimeType:     f.MimeType,
				SizeBytes:    f.SizeBytes,
			})
		}
		if err := tx.Create(&attachments).Error; err != nil {
			return fmt.Errorf("failed to save attachments: %w", err)
		}
		msg.Files = attachments
		return nil
	})
	if err != nil {
		// Два запроса с одним ключом могли пройти проверку выше
		// одновременно: проигравший упирается в уникальный индекс.
		// Для него это тоже повтор - читаем строку победителя
		if input.ClientMessageID != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, ferr := findByClientID(ctx, *input.ClientMessageID); ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	if msg.Files == nil {
		msg.Files = []models.Attachment{}
	}

	s.broker.Publish(msg.Channels(), NewMessageEvent(&msg))
	if msg.ReceiverID != nil {
		s.counters.IncrUnread(ctx, *msg.ReceiverID)
	}

	return &msg, true, nil
}

// findByClientID достает сообщение по ключу идемпотентности. Читаем
// с мастера: реплика может еще не видеть только что записанную строку
func findByClientID(ctx context.Context, key string) (*models.Message, error) {
	var existing models.Message
	err := db.GetWriteDB(ctx).Preload("Files").
		Where("client_message_id = ?", key).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing.Files == nil {
		existing.Files = []models.Attachment{}
	}
	return &existing, nil
}

// findByID достает сообщение с вложениями, NotFoundError если его нет
func findByID(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	err := db.GetWriteDB(ctx).Preload("Files").First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundError("message", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", id, err)
	}
	return &msg, nil
}

// MarkDelivered ставит delivered_at = now. Повторный вызов сдвигает
// отметку заново - так ведет себя и исходный API. Fan-out не трогаем
func (s *MessageService) MarkDelivered(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := db.GetWriteDB(ctx).Model(msg).Update("delivered_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to mark message %d delivered: %w", id, err)
	}
	msg.DeliveredAt = &now
	return msg, nil
}

// MarkRead ставит read_at = now (тоже с перезаписью) и рассылает
// квитанцию о прочтении в те же каналы, что и само сообщение
func (s *MessageService) MarkRead(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := db.GetWriteDB(ctx).Model(msg).Update("read_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to mark message %d read: %w", id, err)
	}
	msg.ReadAt = &now

	s.broker.Publish(msg.Channels(), NewReadEvent(msg))
	if msg.ReceiverID != nil {
		s.counters.ResetUnread(ctx, *msg.ReceiverID)
	}
	return msg, nil
}
