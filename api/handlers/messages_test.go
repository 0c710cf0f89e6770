package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"agrochat/api/handlers"
	"agrochat/api/routes"
	"agrochat/db"
	"agrochat/models"
	"agrochat/services"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn подписчик для проверки fan-out без живого сокета
type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.payloads))
	copy(out, c.payloads)
	return out
}

// setupRouter собирает полный роутер поверх in-memory SQLite
func setupRouter(t *testing.T) (*gin.Engine, *services.ChannelRegistry) {
	t.Helper()
	if db.ORM == nil {
		if err := db.ConnectTestDB(); err != nil {
			t.Fatalf("Failed to setup test database: %v", err)
		}
	}
	db.ORM.Exec("DELETE FROM message_files")
	db.ORM.Exec("DELETE FROM messages")
	db.ORM.Exec("DELETE FROM users")

	gin.SetMode(gin.TestMode)
	router := gin.New()

	registry := services.NewChannelRegistry()
	broker := services.NewFanoutBroker(registry, nil)
	counters := services.NewCounterService(nil)
	routes.MessagesApi(router,
		handlers.NewMessageHandlers(services.NewMessageService(broker, counters), services.NewThreadService(), counters),
		handlers.NewWSHandlers(registry),
	)
	return router, registry
}

func createTestUser(t *testing.T) int64 {
	t.Helper()
	user := models.User{
		Nickname:  gofakeit.Username(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Role:      models.ADVISER,
	}
	if err := db.ORM.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user.ID
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSendDirectMessage(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)
	bob := createTestUser(t)

	w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
		"sender_id":   alice,
		"receiver_id": bob,
		"text":        "Hello Bob!",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["success"])

	data := resp["data"].(map[string]interface{})
	assert.NotZero(t, data["id"])
	assert.Nil(t, data["delivered_at"])
	assert.Nil(t, data["read_at"])

	// Сообщение видно в треде пары
	w = doJSONRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/messages/thread?userA=%d&userB=%d", alice, bob), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody(t, w)
	thread := resp["data"].([]interface{})
	require.Len(t, thread, 1)
	assert.Equal(t, data["id"], thread[0].(map[string]interface{})["id"])

	meta := resp["meta"].(map[string]interface{})
	assert.EqualValues(t, 1, meta["page"])
	assert.EqualValues(t, 30, meta["limit"])
	assert.EqualValues(t, 1, meta["total"])
	assert.EqualValues(t, 1, meta["pages"])
}

func TestSendFileOnlyMessage(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)
	bob := createTestUser(t)

	w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
		"sender_id":   bob,
		"receiver_id": alice,
		"files": []gin.H{
			{"path": "uploads/demo.txt", "original_name": "demo.txt", "mime_type": "text/plain", "size_bytes": 12},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody(t, w)
	files := resp["data"].(map[string]interface{})["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, "demo.txt", files[0].(map[string]interface{})["original_name"])
}

func TestSendRoomMessage(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)

	w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
		"sender_id": alice,
		"room":      "agronomy-room",
		"text":      "Hello room!",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSONRequest(t, router, "GET", "/api/v1/messages/room/agronomy-room", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	require.Len(t, resp["data"].([]interface{}), 1)
}

func TestSendMessageWithoutTarget(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)

	w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
		"sender_id": alice,
		"text":      "no target",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, false, resp["success"])
}

func TestSendMessageUnknownSender(t *testing.T) {
	router, _ := setupRouter(t)
	bob := createTestUser(t)

	w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
		"sender_id":   999999,
		"receiver_id": bob,
		"text":        "hi",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInboxEndpoint(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)
	bob := createTestUser(t)

	for i := 0; i < 3; i++ {
		w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
			"sender_id":   alice,
			"receiver_id": bob,
			"text":        fmt.Sprintf("msg %d", i),
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSONRequest(t, router, "GET", fmt.Sprintf("/api/v1/messages/user/%d?limit=2", bob), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Len(t, resp["data"].([]interface{}), 2)
	meta := resp["meta"].(map[string]interface{})
	assert.EqualValues(t, 3, meta["total"])
	assert.EqualValues(t, 2, meta["pages"])
}

func TestDeliveredAndReadReceipts(t *testing.T) {
	router, registry := setupRouter(t)
	alice := createTestUser(t)
	bob := createTestUser(t)

	w := doJSONRequest(t, router, "POST", "/api/v1/messages", gin.H{
		"sender_id":   alice,
		"receiver_id": bob,
		"text":        "read me",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decodeBody(t, w)["data"].(map[string]interface{})["id"].(float64))

	// Живой подписчик канала отправителя должен получить квитанцию
	subscriber := &fakeConn{}
	registry.Join(models.UserChannel(alice), subscriber)

	w = doJSONRequest(t, router, "PATCH", fmt.Sprintf("/api/v1/messages/%d/delivered", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.NotNil(t, data["delivered_at"])

	w = doJSONRequest(t, router, "PATCH", fmt.Sprintf("/api/v1/messages/%d/read", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeBody(t, w)["data"].(map[string]interface{})
	assert.NotNil(t, data["read_at"])

	payloads := subscriber.received()
	require.Len(t, payloads, 1, "delivered must not broadcast, read must")
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, "message:read", event["event"])
	receipt := event["data"].(map[string]interface{})
	assert.EqualValues(t, id, receipt["id"])
	assert.NotNil(t, receipt["read_at"])
}

func TestStatusEndpointsUnknownID(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSONRequest(t, router, "PATCH", "/api/v1/messages/424242/delivered", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSONRequest(t, router, "PATCH", "/api/v1/messages/424242/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThreadEndpointRequiresUsers(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSONRequest(t, router, "GET", "/api/v1/messages/thread?userA=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnreadEndpointWithoutRedis(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)

	w := doJSONRequest(t, router, "GET", fmt.Sprintf("/api/v1/messages/user/%d/unread", alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["unread"])
}

func TestIdempotentReplayReturnsExisting(t *testing.T) {
	router, _ := setupRouter(t)
	alice := createTestUser(t)
	bob := createTestUser(t)

	body := gin.H{
		"sender_id":         alice,
		"receiver_id":       bob,
		"text":              "exactly once",
		"client_message_id": "4f9c38f2-6a3e-4f4e-9b57-2b1a6e9c0d11",
	}
	w := doJSONRequest(t, router, "POST", "/api/v1/messages", body)
	require.Equal(t, http.StatusCreated, w.Code)
	firstID := decodeBody(t, w)["data"].(map[string]interface{})["id"]

	w = doJSONRequest(t, router, "POST", "/api/v1/messages", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, firstID, decodeBody(t, w)["data"].(map[string]interface{})["id"])
}
