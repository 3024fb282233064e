package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mindmate/config"
	"mindmate/internal/model"
	"mindmate/internal/repository"
	"mindmate/internal/service"
	"mindmate/pkg/db"
	chatredis "mindmate/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerEnv struct {
	router *gin.Engine
	chat   *service.ChatService
	bg     *service.Background
}

func setupRouter(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(config.DatabaseConfig{Driver: "sqlite", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb, &model.User{}, &model.Message{}, &model.UserBadge{}))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	users := repository.NewUserRepository(gdb)
	require.NoError(t, users.Create(context.Background(), &model.User{ID: "u1", Username: "alice"}))
	require.NoError(t, users.Create(context.Background(), &model.User{ID: "u2", Username: "bob"}))

	cfg := config.ChatConfig{DefaultRoom: "global", CacheCapacity: 100, HistoryLimit: 50, HistoryMaxLimit: 100, OfflineQueueTTL: time.Hour}
	messages := repository.NewMessageRepository(gdb)
	cache := chatredis.NewMessageCache(rc, cfg.CacheCapacity)
	presence := chatredis.NewPresence(rc)
	bg := service.NewBackground(5 * time.Second)
	t.Cleanup(bg.Wait)

	chat := service.NewChatService(messages, cache, users, chatredis.NewOfflineQueue(rc, cfg.OfflineQueueTTL, 0),
		presence, service.NewEngagementService(users), bg, service.NewMonotonicClock(), cfg)
	history := service.NewHistoryService(messages, cache, bg, cfg)

	r := gin.New()
	NewChatHandler(chat, history).Register(r.Group("/api/chat"))
	r.GET("/health", NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis": func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		},
	}).Health)

	return &handlerEnv{router: r, chat: chat, bg: bg}
}

func (e *handlerEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) send(t *testing.T, sender string, n int) []*model.MessageSnapshot {
	t.Helper()
	out := make([]*model.MessageSnapshot, 0, n)
	for i := 1; i <= n; i++ {
		snap, err := e.chat.Send(context.Background(), service.SendInput{SenderID: sender, Content: fmt.Sprintf("#%d", i)})
		require.NoError(t, err)
		out = append(out, snap)
	}
	e.bg.Wait()
	return out
}

func decodeMessages(t *testing.T, w *httptest.ResponseRecorder) []model.MessageSnapshot {
	t.Helper()
	var out []model.MessageSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGetHistory_Latest(t *testing.T) {
	env := setupRouter(t)
	env.send(t, "u1", 105)

	w := env.do(http.MethodGet, "/api/chat", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeMessages(t, w)
	require.Len(t, got, 100)
	assert.Equal(t, "#6", got[0].Content)
	assert.Equal(t, "#105", got[99].Content)
	assert.Equal(t, "alice", got[0].SenderID.Username)
}

func TestGetHistory_EmptyRoomIsEmptyArray(t *testing.T) {
	env := setupRouter(t)

	w := env.do(http.MethodGet, "/api/chat?roomId=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetHistory_BeforeCursor(t *testing.T) {
	env := setupRouter(t)
	sent := env.send(t, "u1", 105)

	w := env.do(http.MethodGet, "/api/chat?before="+sent[49].ID+"&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeMessages(t, w)
	require.Len(t, got, 10)
	assert.Equal(t, "#40", got[0].Content)
	assert.Equal(t, "#49", got[9].Content)
}

func TestGetHistory_InvalidBefore(t *testing.T) {
	env := setupRouter(t)

	w := env.do(http.MethodGet, "/api/chat?before=not-a-cursor", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid before parameter"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/chat?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteMessage(t *testing.T) {
	env := setupRouter(t)
	sent := env.send(t, "u1", 2)

	tests := []struct {
		name   string
		target string
		code   int
		body   string
	}{
		{
			name:   "unknown message",
			target: "/api/chat/01HZZZZZZZZZZZZZZZZZZZZZZZ/u1",
			code:   http.StatusNotFound,
			body:   `{"error":"Message not found"}`,
		},
		{
			name:   "not the sender",
			target: "/api/chat/" + sent[0].ID + "/u2",
			code:   http.StatusForbidden,
			body:   `{"error":"You can only modify your own messages"}`,
		},
		{
			name:   "sender deletes",
			target: "/api/chat/" + sent[0].ID + "/u1",
			code:   http.StatusOK,
			body:   `{"success":true,"message":"Message deleted"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodDelete, tt.target, "")
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}

	w := env.do(http.MethodGet, "/api/chat", "")
	got := decodeMessages(t, w)
	require.Len(t, got, 2)
	assert.True(t, got[0].Deleted)
	assert.False(t, got[1].Deleted)
}

func TestEditMessage(t *testing.T) {
	env := setupRouter(t)
	sent := env.send(t, "u1", 1)
	target := "/api/chat/" + sent[0].ID

	w := env.do(http.MethodPatch, target+"/u1", `{"content":"better"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var snap model.MessageSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "better", snap.Content)
	assert.True(t, snap.Edited)
	require.Len(t, snap.EditHistory, 1)
	assert.Equal(t, "#1", snap.EditHistory[0].Text)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPatch, target+"/u1", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPatch, target+"/u2", `{"content":"x"}`).Code)

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, target+"/u1", "").Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPatch, target+"/u1", `{"content":"x"}`).Code)
}

func TestHealth(t *testing.T) {
	env := setupRouter(t)

	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	failing := NewHealthHandler(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	r.GET("/health", failing.Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Components["redis"])
}
