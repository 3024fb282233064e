package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mindmate/config"
	"mindmate/internal/model"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// InitRedis 初始化Redis连接
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		// 连接池配置
		PoolSize:     10,              // 连接池大小
		MinIdleConns: 5,               // 最小空闲连接
		MaxRetries:   0,               // 基础设施错误不自动重试
		DialTimeout:  5 * time.Second, // 连接超时
		ReadTimeout:  3 * time.Second, // 读超时
		WriteTimeout: 3 * time.Second, // 写超时
	})

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	client = c
	return c, nil
}

// Close 关闭Redis连接
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// HealthCheck 检查Redis健康状态
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis连接异常: %w", err)
	}

	return nil
}

// encodeSnapshots 序列化快照，任何一条失败都整体失败
func encodeSnapshots(snapshots []*model.MessageSnapshot) ([]interface{}, error) {
	values := make([]interface{}, 0, len(snapshots))
	for _, s := range snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("序列化消息失败: %w", err)
		}
		values = append(values, data)
	}
	return values, nil
}

// decodeSnapshots 反序列化快照，跳过无法解析的条目
func decodeSnapshots(items []string) []*model.MessageSnapshot {
	out := make([]*model.MessageSnapshot, 0, len(items))
	for _, item := range items {
		var s model.MessageSnapshot
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			continue
		}
		out = append(out, &s)
	}
	return out
}
