package service

import (
	"context"
	"time"

	"mindmate/internal/model"
	"mindmate/internal/repository"
)

// MessageStore 持久化消息日志
type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
	Save(ctx context.Context, message *model.Message) error
	MarkDeleted(ctx context.Context, id, deletedBy string, at time.Time) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	Latest(ctx context.Context, roomID string, limit int) ([]*model.Message, error)
	Before(ctx context.Context, roomID string, cursor repository.Cursor, limit int) ([]*model.Message, error)
}

// RoomCache 房间最近消息缓存
type RoomCache interface {
	Append(ctx context.Context, roomID string, snapshots ...*model.MessageSnapshot) error
	Repopulate(ctx context.Context, roomID string, snapshots []*model.MessageSnapshot) (bool, error)
	ReadAll(ctx context.Context, roomID string) ([]*model.MessageSnapshot, error)
	UpdateAt(ctx context.Context, roomID, messageID string, mutate func(*model.MessageSnapshot)) error
	Capacity() int
}

// UserStore 用户资料、计数器与徽章
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	AdjustCommunityStreak(ctx context.Context, userID string, delta int) error
	ListBadges(ctx context.Context, userID string) ([]string, error)
	AwardBadges(ctx context.Context, userID string, badgeTypes []string) error
}

// OfflineStore 离线消息队列（写入侧）
type OfflineStore interface {
	EnqueueMany(ctx context.Context, userIDs []string, snapshot *model.MessageSnapshot) error
}

// RoomDirectory 房间成员与最后已读记录
type RoomDirectory interface {
	JoinRoom(ctx context.Context, roomID, userID string) error
	RoomMembers(ctx context.Context, roomID string) ([]string, error)
	SetLastSeen(ctx context.Context, userID, messageID string) error
}

// Broadcaster 向在线连接推送事件
// BroadcastOrQueue 把 recipients 中没有连接收到事件的用户交给 queue，判断与推送基于同一连接快照
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
	BroadcastOrQueue(eventType string, payload interface{}, recipients []string, queue func(absent []string))
}
