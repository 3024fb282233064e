package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 在线状态相关常量
const (
	LastSeenKeyPrefix    = "lastSeen:" // 用户最后已读消息key前缀
	RoomMembersKeyPrefix = "members:"  // 房间成员集合key前缀
	OnlineUsersKey       = "online:users"
)

// Presence 在线状态、房间成员与最后已读消息
type Presence struct {
	client redis.UniversalClient
}

// NewPresence 创建在线状态存储
func NewPresence(client redis.UniversalClient) *Presence {
	return &Presence{client: client}
}

// SetLastSeen 记录用户最后看到的消息ID
func (p *Presence) SetLastSeen(ctx context.Context, userID, messageID string) error {
	if err := p.client.Set(ctx, LastSeenKeyPrefix+userID, messageID, 0).Err(); err != nil {
		return fmt.Errorf("记录最后已读消息失败: %w", err)
	}
	return nil
}

// GetLastSeen 获取用户最后看到的消息ID，不存在时返回空字符串
func (p *Presence) GetLastSeen(ctx context.Context, userID string) (string, error) {
	id, err := p.client.Get(ctx, LastSeenKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("获取最后已读消息失败: %w", err)
	}
	return id, nil
}

// JoinRoom 将用户加入房间成员集合
func (p *Presence) JoinRoom(ctx context.Context, roomID, userID string) error {
	if err := p.client.SAdd(ctx, RoomMembersKeyPrefix+roomID, userID).Err(); err != nil {
		return fmt.Errorf("加入房间失败: %w", err)
	}
	return nil
}

// RoomMembers 获取房间全部成员
func (p *Presence) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	members, err := p.client.SMembers(ctx, RoomMembersKeyPrefix+roomID).Result()
	if err != nil {
		return nil, fmt.Errorf("获取房间成员失败: %w", err)
	}
	return members, nil
}

// SetOnline 更新在线用户集合
func (p *Presence) SetOnline(ctx context.Context, userID string, online bool) error {
	var err error
	if online {
		err = p.client.SAdd(ctx, OnlineUsersKey, userID).Err()
	} else {
		err = p.client.SRem(ctx, OnlineUsersKey, userID).Err()
	}
	if err != nil {
		return fmt.Errorf("更新在线用户集合失败: %w", err)
	}
	return nil
}

// IsOnline 检查用户是否在在线集合中
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	ok, err := p.client.SIsMember(ctx, OnlineUsersKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("检查用户在线状态失败: %w", err)
	}
	return ok, nil
}
