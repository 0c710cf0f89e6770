package services

import (
	"encoding/json"
	"time"

	"agrochat/models"
)

const (
	EventMessageNew  = "message:new"
	EventMessageRead = "message:read"
	EventConnected   = "connected"
)

// Event - конверт события для push через WebSocket
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ReadReceipt - payload события message:read
type ReadReceipt struct {
	ID     int64      `json:"id"`
	ReadAt *time.Time `json:"read_at"`
}

// NewMessageEvent формирует событие о новом сообщении (с вложениями)
func NewMessageEvent(msg *models.Message) Event {
	return Event{Event: EventMessageNew, Data: msg}
}

// NewReadEvent формирует событие о прочтении сообщения
func NewReadEvent(msg *models.Message) Event {
	return Event{Event: EventMessageRead, Data: ReadReceipt{ID: msg.ID, ReadAt: msg.ReadAt}}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
