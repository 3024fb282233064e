package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mindmate/config"
	"mindmate/internal/model"
	"mindmate/internal/repository"
	"mindmate/pkg/db"
	chatredis "mindmate/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type event struct {
	Type    string
	Payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []event
	online map[string]bool
}

func newRecordingBroadcaster(online ...string) *recordingBroadcaster {
	b := &recordingBroadcaster{online: map[string]bool{}}
	for _, u := range online {
		b.online[u] = true
	}
	return b
}

func (b *recordingBroadcaster) Broadcast(eventType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{Type: eventType, Payload: payload})
}

func (b *recordingBroadcaster) BroadcastOrQueue(eventType string, payload interface{}, recipients []string, queue func(absent []string)) {
	b.mu.Lock()
	b.events = append(b.events, event{Type: eventType, Payload: payload})
	var absent []string
	for _, u := range recipients {
		if !b.online[u] {
			absent = append(absent, u)
		}
	}
	b.mu.Unlock()

	if queue != nil && len(absent) > 0 {
		queue(absent)
	}
}

func (b *recordingBroadcaster) ofType(eventType string) []event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	mr          *miniredis.Miniredis
	users       *repository.UserRepository
	messages    *repository.MessageRepository
	cache       *chatredis.MessageCache
	offline     *chatredis.OfflineQueue
	presence    *chatredis.Presence
	bg          *Background
	chat        *ChatService
	history     *HistoryService
	broadcaster *recordingBroadcaster
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		DefaultRoom:      "global",
		CacheCapacity:    100,
		HistoryLimit:     50,
		HistoryMaxLimit:  100,
		OfflineQueueTTL:  time.Hour,
		DetachedTimeout:  5 * time.Second,
		MaxContentLength: 4000,
	}
}

func setupEnv(t *testing.T, online ...string) *testEnv {
	t.Helper()

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

	cfg := testChatConfig()
	env := &testEnv{
		mr:          mr,
		users:       repository.NewUserRepository(gdb),
		messages:    repository.NewMessageRepository(gdb),
		cache:       chatredis.NewMessageCache(rc, cfg.CacheCapacity),
		offline:     chatredis.NewOfflineQueue(rc, cfg.OfflineQueueTTL, cfg.OfflineQueueMax),
		presence:    chatredis.NewPresence(rc),
		bg:          NewBackground(cfg.DetachedTimeout),
		broadcaster: newRecordingBroadcaster(online...),
	}

	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := &MonotonicClock{now: func() time.Time { return fixed }}

	engagement := NewEngagementService(env.users)
	env.chat = NewChatService(env.messages, env.cache, env.users, env.offline, env.presence, engagement, env.bg, clock, cfg)
	env.chat.SetBroadcaster(env.broadcaster)
	env.history = NewHistoryService(env.messages, env.cache, env.bg, cfg)

	t.Cleanup(env.bg.Wait)
	return env
}

func (e *testEnv) createUser(t *testing.T, id, username string) {
	t.Helper()
	require.NoError(t, e.users.Create(context.Background(), &model.User{ID: id, Username: username, Fullname: username + " Full"}))
}

// sendN 依次发送 n 条消息，内容为 #1..#n
func (e *testEnv) sendN(t *testing.T, sender string, n int) []*model.MessageSnapshot {
	t.Helper()
	out := make([]*model.MessageSnapshot, 0, n)
	for i := 1; i <= n; i++ {
		snap, err := e.chat.Send(context.Background(), SendInput{SenderID: sender, Content: fmt.Sprintf("#%d", i)})
		require.NoError(t, err)
		out = append(out, snap)
	}
	e.bg.Wait()
	return out
}

func ids(snaps []*model.MessageSnapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.ID)
	}
	return out
}

func contents(snaps []*model.MessageSnapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Content)
	}
	return out
}
