package handlers

import (
	"log"
	"net/http"
	"strconv"

	"agrochat/models"
	"agrochat/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandlers - точка входа real-time протокола
type WSHandlers struct {
	registry *services.ChannelRegistry
}

func NewWSHandlers(registry *services.ChannelRegistry) *WSHandlers {
	return &WSHandlers{registry: registry}
}

// Connect - WebSocket endpoint. Соединение при подключении называет
// user_id и/или room и подписывается на соответствующие каналы.
// Сервер только пушит события, входящие кадры вычитываются и отбрасываются
func (h *WSHandlers) Connect(c *gin.Context) {
	channels := make([]string, 0, 2)
	if userIDStr := c.Query("user_id"); userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil || userID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid user_id"})
			return
		}
		channels = append(channels, models.UserChannel(userID))
	}
	if room := c.Query("room"); room != "" {
		channels = append(channels, models.RoomChannel(room))
	}
	if len(channels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Provide user_id or room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	for _, channel := range channels {
		h.registry.Join(channel, conn)
	}
	defer func() {
		for _, channel := range channels {
			h.registry.Leave(channel, conn)
		}
	}()

	// Приветствие
	if greeting, err := (services.Event{Event: services.EventConnected}).Marshal(); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, greeting)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
