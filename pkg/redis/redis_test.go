package redis

import (
	"fmt"
	"testing"
	"time"

	"mindmate/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func snap(i int) *model.MessageSnapshot {
	return &model.MessageSnapshot{
		ID:        fmt.Sprintf("m%03d", i),
		RoomID:    "global",
		SenderID:  &model.SenderProfile{ID: "u1", Username: "alice"},
		Content:   fmt.Sprintf("message %d", i),
		Type:      model.MessageTypeText,
		Status:    model.StatusSent,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
	}
}
