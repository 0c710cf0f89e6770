package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"agrochat/api/middleware"
	"agrochat/services"

	"github.com/gin-gonic/gin"
)

const serviceName = "agrochat"

// MessageHandlers содержит обработчики REST API сообщений
type MessageHandlers struct {
	messages *services.MessageService
	threads  *services.ThreadService
	counters *services.CounterService
}

func NewMessageHandlers(messages *services.MessageService, threads *services.ThreadService, counters *services.CounterService) *MessageHandlers {
	return &MessageHandlers{
		messages: messages,
		threads:  threads,
		counters: counters,
	}
}

// respondError переводит ошибку сервиса в HTTP-статус.
// Внутренние ошибки наружу не отдаем, только в лог
func respondError(c *gin.Context, operation string, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": validationErr.Error()})
		return
	}
	var notFoundErr *services.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": notFoundErr.Error()})
		return
	}
	log.Printf("message.%s error: %v", operation, err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
}

// paginate читает page/limit из query и нормализует их
func paginate(c *gin.Context) services.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageLimit)))
	return services.NormalizePagination(page, limit)
}

func pageResponse(c *gin.Context, data interface{}, p services.Pagination, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"meta": gin.H{
			"page":  p.Page,
			"limit": p.Limit,
			"total": total,
			"pages": p.Pages(total),
		},
	})
}

// CreateMessage - отправка сообщения (личного или в комнату)
func (h *MessageHandlers) CreateMessage(c *gin.Context) {
	start := time.Now()
	var input services.CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		return
	}

	msg, created, err := h.messages.Create(c.Request.Context(), input)
	if err != nil {
		middleware.RecordMessageOperation("create", "error", serviceName, time.Since(start), err)
		respondError(c, "create", err)
		return
	}
	middleware.RecordMessageOperation("create", "ok", serviceName, time.Since(start), nil)

	status := http.StatusCreated
	if !created {
		// Повтор по client_message_id: строка уже существует
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"success": true, "data": msg})
}

// GetDirectThread - переписка двух пользователей (?userA=&userB=)
func (h *MessageHandlers) GetDirectThread(c *gin.Context) {
	userA, errA := strconv.ParseInt(c.Query("userA"), 10, 64)
	userB, errB := strconv.ParseInt(c.Query("userB"), 10, 64)
	if errA != nil || errB != nil || userA == 0 || userB == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "userA and userB are required"})
		return
	}
	p := paginate(c)
	messages, total, err := h.threads.DirectThread(c.Request.Context(), userA, userB, p)
	if err != nil {
		respondError(c, "getDirectThread", err)
		return
	}
	pageResponse(c, messages, p, total)
}

// GetRoomThread - сообщения комнаты
func (h *MessageHandlers) GetRoomThread(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "room is required"})
		return
	}
	p := paginate(c)
	messages, total, err := h.threads.RoomThread(c.Request.Context(), room, p)
	if err != nil {
		respondError(c, "getRoomThread", err)
		return
	}
	pageResponse(c, messages, p, total)
}

// ListForUser - инбокс пользователя, от новых к старым
func (h *MessageHandlers) ListForUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid user_id"})
		return
	}
	p := paginate(c)
	messages, total, err := h.threads.ListForUser(c.Request.Context(), userID, p)
	if err != nil {
		respondError(c, "listForUser", err)
		return
	}
	pageResponse(c, messages, p, total)
}

// GetUnread - счетчик непрочитанных сообщений пользователя
func (h *MessageHandlers) GetUnread(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid user_id"})
		return
	}
	unread := h.counters.GetUnread(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"user_id": userID, "unread": unread},
	})
}

// MarkDelivered - отметка о доставке сообщения
func (h *MessageHandlers) MarkDelivered(c *gin.Context) {
	start := time.Now()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid message id"})
		return
	}
	msg, err := h.messages.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		middleware.RecordMessageOperation("mark_delivered", "error", serviceName, time.Since(start), err)
		respondError(c, "markDelivered", err)
		return
	}
	middleware.RecordMessageOperation("mark_delivered", "ok", serviceName, time.Since(start), nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": msg})
}

// MarkRead - отметка о прочтении, рассылает квитанцию подписчикам
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	start := time.Now()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid message id"})
		return
	}
	msg, err := h.messages.MarkRead(c.Request.Context(), id)
	if err != nil {
		middleware.RecordMessageOperation("mark_read", "error", serviceName, time.Since(start), err)
		respondError(c, "markRead", err)
		return
	}
	middleware.RecordMessageOperation("mark_read", "ok", serviceName, time.Since(start), nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": msg})
}
