package redis

import (
	"context"
	"fmt"
	"time"

	"mindmate/internal/model"

	"github.com/redis/go-redis/v9"
)

// 离线消息相关常量
const (
	OfflineMessagesKeyPrefix = "offline:"         // 离线消息key前缀
	DefaultOfflineTTL        = 7 * 24 * time.Hour // 7天过期
	DefaultOfflineMax        = 100                // 每个用户最多保留100条
)

// OfflineQueue 每个用户的离线消息队列，旧消息在前
type OfflineQueue struct {
	client redis.UniversalClient
	ttl    time.Duration
	max    int // 只保留最新的 max 条
}

// NewOfflineQueue 创建离线队列
func NewOfflineQueue(client redis.UniversalClient, ttl time.Duration, max int) *OfflineQueue {
	if ttl <= 0 {
		ttl = DefaultOfflineTTL
	}
	if max <= 0 {
		max = DefaultOfflineMax
	}
	return &OfflineQueue{client: client, ttl: ttl, max: max}
}

func offlineKey(userID string) string {
	return OfflineMessagesKeyPrefix + userID
}

// Enqueue 追加一条离线消息
func (q *OfflineQueue) Enqueue(ctx context.Context, userID string, snapshot *model.MessageSnapshot) error {
	return q.EnqueueMany(ctx, []string{userID}, snapshot)
}

// EnqueueMany 为多个用户追加同一条离线消息，使用Pipeline批量操作
func (q *OfflineQueue) EnqueueMany(ctx context.Context, userIDs []string, snapshot *model.MessageSnapshot) error {
	if len(userIDs) == 0 {
		return nil
	}

	values, err := encodeSnapshots([]*model.MessageSnapshot{snapshot})
	if err != nil {
		return err
	}

	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, userID := range userIDs {
			key := offlineKey(userID)
			pipe.RPush(ctx, key, values...)
			pipe.LTrim(ctx, key, int64(-q.max), -1) // 保留最新的 max 条
			pipe.Expire(ctx, key, q.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("添加离线消息失败: %w", err)
	}
	return nil
}

// DrainAndClear 原子地读取并清空用户的离线消息
// 读取后进程崩溃会丢失这些消息（至多一次）
func (q *OfflineQueue) DrainAndClear(ctx context.Context, userID string) ([]*model.MessageSnapshot, error) {
	key := offlineKey(userID)

	var items *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取离线消息失败: %w", err)
	}

	return decodeSnapshots(items.Val()), nil
}

// Count 获取用户离线消息数量
func (q *OfflineQueue) Count(ctx context.Context, userID string) (int64, error) {
	count, err := q.client.LLen(ctx, offlineKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("获取离线消息数量失败: %w", err)
	}
	return count, nil
}
