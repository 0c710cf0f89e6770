package services

import (
	"context"
	"fmt"

	"agrochat/db"
	"agrochat/models"

	"gorm.io/gorm"
)

const (
	DefaultPageLimit = 30
	MaxPageLimit     = 100
)

// Pagination - нормализованные параметры страницы
type Pagination struct {
	Page  int
	Limit int
}

// NormalizePagination приводит параметры к допустимым границам:
// page >= 1, limit в [1, 100], по умолчанию page=1, limit=30
func NormalizePagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Pagination{Page: page, Limit: limit}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages считает число страниц для total записей
func (p Pagination) Pages(total int64) int64 {
	limit := int64(p.Limit)
	return (total + limit - 1) / limit
}

// ThreadService - read-side запросы к хранилищу сообщений.
// Только чтение, ходит через read-реплики, брокер не трогает
type ThreadService struct{}

func NewThreadService() *ThreadService {
	return &ThreadService{}
}

// runPaged выполняет запрос с подсчетом общего числа строк
func runPaged(query *gorm.DB, order string, p Pagination) ([]models.Message, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	messages := make([]models.Message, 0, p.Limit)
	err := query.Preload("Files").
		Order(order).
		Limit(p.Limit).
		Offset(p.Offset()).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, total, nil
}

// DirectThread возвращает переписку двух пользователей (без комнат),
// от старых к новым. Симметричен относительно порядка аргументов
func (s *ThreadService) DirectThread(ctx context.Context, userA, userB int64, p Pagination) ([]models.Message, int64, error) {
	query := db.GetReadOnlyDB(ctx).Model(&models.Message{}).
		Where("room IS NULL AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			userA, userB, userB, userA)
	return runPaged(query, "created_at ASC, id ASC", p)
}

// RoomThread возвращает сообщения комнаты, от старых к новым
func (s *ThreadService) RoomThread(ctx context.Context, room string, p Pagination) ([]models.Message, int64, error) {
	query := db.GetReadOnlyDB(ctx).Model(&models.Message{}).
		Where("room = ?", room)
	return runPaged(query, "created_at ASC, id ASC", p)
}

// ListForUser - инбокс: все сообщения, где пользователь отправитель
// или получатель, от новых к старым
func (s *ThreadService) ListForUser(ctx context.Context, userID int64, p Pagination) ([]models.Message, int64, error) {
	query := db.GetReadOnlyDB(ctx).Model(&models.Message{}).
		Where("sender_id = ? OR receiver_id = ?", userID, userID)
	return runPaged(query, "created_at DESC, id DESC", p)
}
