package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mindmate/internal/model"

	"github.com/redis/go-redis/v9"
)

// 消息缓存相关常量
const (
	RoomMessagesKeyPrefix = "chat:" // 房间消息缓存key前缀
	DefaultCacheCapacity  = 100     // 每个房间缓存的最近消息数
	maxUpdateAttempts     = 3       // UpdateAt 遇到并发修改时的最大尝试次数
)

// MessageCache 房间消息缓存：最近 N 条消息的有序列表，旧消息在前
// 缓存是软状态，总能从持久化日志重建
type MessageCache struct {
	client   redis.UniversalClient
	capacity int
}

// NewMessageCache 创建房间消息缓存
func NewMessageCache(client redis.UniversalClient, capacity int) *MessageCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &MessageCache{client: client, capacity: capacity}
}

// Capacity 缓存容量
func (c *MessageCache) Capacity() int {
	return c.capacity
}

func roomKey(roomID string) string {
	return RoomMessagesKeyPrefix + roomID
}

// Append 批量追加消息并裁剪到容量，RPUSH 与 LTRIM 在同一个事务中执行
func (c *MessageCache) Append(ctx context.Context, roomID string, snapshots ...*model.MessageSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	values, err := encodeSnapshots(snapshots)
	if err != nil {
		return err
	}

	key := roomKey(roomID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-c.capacity), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("追加房间消息缓存失败: %w", err)
	}
	return nil
}

// Repopulate 缓存为空时回填；期间若有并发写入或列表非空则放弃
func (c *MessageCache) Repopulate(ctx context.Context, roomID string, snapshots []*model.MessageSnapshot) (bool, error) {
	if len(snapshots) == 0 {
		return false, nil
	}

	values, err := encodeSnapshots(snapshots)
	if err != nil {
		return false, err
	}

	key := roomKey(roomID)
	written := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, values...)
			pipe.LTrim(ctx, key, int64(-c.capacity), -1)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("回填房间消息缓存失败: %w", err)
	}
	return written, nil
}

// ReadAll 读取房间全部缓存消息，房间不存在时返回空切片
func (c *MessageCache) ReadAll(ctx context.Context, roomID string) ([]*model.MessageSnapshot, error) {
	items, err := c.client.LRange(ctx, roomKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取房间消息缓存失败: %w", err)
	}
	return decodeSnapshots(items), nil
}

// UpdateAt 线性查找指定消息并原地修改；未找到时静默返回
// 容量较小（100），线性扫描可以接受
func (c *MessageCache) UpdateAt(ctx context.Context, roomID, messageID string, mutate func(*model.MessageSnapshot)) error {
	key := roomKey(roomID)

	update := func(tx *redis.Tx) error {
		items, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}

		for i, item := range items {
			var s model.MessageSnapshot
			if err := json.Unmarshal([]byte(item), &s); err != nil {
				continue
			}
			if s.ID != messageID {
				continue
			}

			mutate(&s)
			data, err := json.Marshal(&s)
			if err != nil {
				return fmt.Errorf("序列化消息失败: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LSet(ctx, key, int64(i), data)
				return nil
			})
			return err
		}
		return nil
	}

	// 扫描与写回之间列表被修改时下标可能已经移动，重新扫描
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = c.client.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("更新房间消息缓存失败: %w", err)
	}
	return nil
}

// Clear 清除房间缓存
func (c *MessageCache) Clear(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("清除房间消息缓存失败: %w", err)
	}
	return nil
}

// ClearAll 清除所有房间缓存（运维命令使用）
func (c *MessageCache) ClearAll(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, RoomMessagesKeyPrefix+"*", 1000).Result()
		if err != nil {
			return removed, fmt.Errorf("扫描房间缓存key失败: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return removed, fmt.Errorf("删除房间缓存失败: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}
