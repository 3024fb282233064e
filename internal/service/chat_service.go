package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"mindmate/config"
	"mindmate/internal/model"
	"mindmate/internal/repository"
	"mindmate/pkg/logger"
	"mindmate/pkg/metrics"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// SendInput 发送消息参数
type SendInput struct {
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
	RoomID   string `json:"roomId"`
	Type     string `json:"type"`
}

// DeleteInput 删除消息参数
type DeleteInput struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
}

// EditInput 编辑消息参数
type EditInput struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	RoomID    string `json:"roomId"`
}

// LastSeenInput 最后已读参数
type LastSeenInput struct {
	UserID    string `json:"userId"`
	MessageID string `json:"lastMessageId"`
}

// ChatService 消息写入管道：持久化 → 缓存 → 广播 → 离线投递 → 参与计数
type ChatService struct {
	messages   MessageStore
	cache      RoomCache
	users      UserStore
	offline    OfflineStore
	rooms      RoomDirectory
	engagement *EngagementService
	bg         *Background
	clock      Clock
	cfg        config.ChatConfig

	broadcaster Broadcaster
}

// NewChatService 创建ChatService实例
func NewChatService(
	messages MessageStore,
	cache RoomCache,
	users UserStore,
	offline OfflineStore,
	rooms RoomDirectory,
	engagement *EngagementService,
	bg *Background,
	clock Clock,
	cfg config.ChatConfig,
) *ChatService {
	if clock == nil {
		clock = NewMonotonicClock()
	}
	return &ChatService{
		messages:   messages,
		cache:      cache,
		users:      users,
		offline:    offline,
		rooms:      rooms,
		engagement: engagement,
		bg:         bg,
		clock:      clock,
		cfg:        cfg,
	}
}

// SetBroadcaster 注入广播器，需在处理请求前调用
func (s *ChatService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Send 发送消息
// 持久化成功即视为发送成功；缓存、离线队列写入失败只记录日志
func (s *ChatService) Send(ctx context.Context, in SendInput) (*model.MessageSnapshot, error) {
	in.SenderID = strings.TrimSpace(in.SenderID)
	if in.SenderID == "" || strings.TrimSpace(in.Content) == "" {
		return nil, ErrInvalidInput
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(in.Content) > s.cfg.MaxContentLength {
		return nil, ErrInvalidInput
	}
	if in.RoomID == "" {
		in.RoomID = s.cfg.DefaultRoom
	}
	if in.Type == "" {
		in.Type = model.MessageTypeText
	}

	now := s.clock.Now()
	msg := &model.Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		Type:      in.Type,
		Status:    model.StatusSent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("保存消息失败: %w", err)
	}

	// 发送者资料补全；查不到时快照只带ID
	if sender, err := s.users.GetByID(ctx, in.SenderID); err == nil {
		msg.Sender = sender
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("查询发送者资料失败", zap.String("sender_id", in.SenderID), zap.Error(err))
	}
	snap := msg.Snapshot()

	if err := s.cache.Append(ctx, msg.RoomID, snap); err != nil {
		logger.Error("写入房间缓存失败", zap.String("room", msg.RoomID), zap.String("message_id", msg.ID), zap.Error(err))
	}

	if err := s.rooms.JoinRoom(ctx, msg.RoomID, msg.SenderID); err != nil {
		logger.Warn("记录房间成员失败", zap.String("room", msg.RoomID), zap.Error(err))
	}
	s.fanOut(ctx, snap)

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	logger.Debug("消息已发送", zap.String("message_id", msg.ID), zap.String("room", msg.RoomID))

	s.adjustEngagement(ctx, msg.SenderID, 1)
	return snap, nil
}

// fanOut 广播新消息；房间成员中没有连接收到的（发送者除外）写入离线队列
func (s *ChatService) fanOut(ctx context.Context, snap *model.MessageSnapshot) {
	members, err := s.rooms.RoomMembers(ctx, snap.RoomID)
	if err != nil {
		logger.Warn("查询房间成员失败", zap.String("room", snap.RoomID), zap.Error(err))
	}

	recipients := make([]string, 0, len(members))
	for _, userID := range members {
		if userID != snap.SenderID.ID {
			recipients = append(recipients, userID)
		}
	}

	queue := func(absent []string) {
		if err := s.offline.EnqueueMany(ctx, absent, snap); err != nil {
			logger.Error("写入离线队列失败", zap.String("message_id", snap.ID), zap.Error(err))
			return
		}
		metrics.OfflineMessages.WithLabelValues("queued").Add(float64(len(absent)))
	}

	if s.broadcaster == nil {
		if len(recipients) > 0 {
			queue(recipients)
		}
		return
	}
	s.broadcaster.BroadcastOrQueue(model.EventChatMessage, snap, recipients, queue)
}

// Delete 软删除消息，只有发送者可以删除
func (s *ChatService) Delete(ctx context.Context, in DeleteInput) error {
	if in.MessageID == "" || in.UserID == "" {
		return ErrInvalidInput
	}

	msg, err := s.load(ctx, in.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != in.UserID {
		return ErrForbidden
	}

	// 条件更新：并发或重复删除只有一次生效，计数只调整一次
	deletedBy := in.UserID
	at := s.clock.Now()
	changed, err := s.messages.MarkDeleted(ctx, msg.ID, deletedBy, at)
	if err != nil {
		return fmt.Errorf("删除消息失败: %w", err)
	}
	if changed {
		msg.UpdatedAt = at
	}

	// 缓存按消息所在房间修补，忽略客户端传入的房间
	if err := s.cache.UpdateAt(ctx, msg.RoomID, msg.ID, func(snap *model.MessageSnapshot) {
		snap.Deleted = true
		snap.DeletedBy = &deletedBy
		snap.UpdatedAt = msg.UpdatedAt
	}); err != nil {
		logger.Error("修补房间缓存失败", zap.String("room", msg.RoomID), zap.String("message_id", msg.ID), zap.Error(err))
	}

	s.broadcast(model.EventMessageDeleted, &model.DeletedNotice{MessageID: msg.ID, DeletedBy: deletedBy})
	metrics.MessagesTotal.WithLabelValues("deleted").Inc()

	if changed {
		s.adjustEngagement(ctx, msg.SenderID, -1)
	}
	return nil
}

// Edit 编辑消息，保留编辑前的内容
func (s *ChatService) Edit(ctx context.Context, in EditInput) (*model.MessageSnapshot, error) {
	if in.MessageID == "" || in.UserID == "" || strings.TrimSpace(in.Content) == "" {
		return nil, ErrInvalidInput
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(in.Content) > s.cfg.MaxContentLength {
		return nil, ErrInvalidInput
	}

	msg, err := s.load(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != in.UserID {
		return nil, ErrForbidden
	}
	if msg.Deleted {
		return nil, ErrMessageDeleted
	}

	now := s.clock.Now()
	msg.EditHistory = append(msg.EditHistory, model.EditRecord{Text: msg.Content, EditedAt: now})
	msg.Content = in.Content
	msg.Edited = true
	msg.UpdatedAt = now
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("编辑消息失败: %w", err)
	}

	snap := msg.Snapshot()
	if err := s.cache.UpdateAt(ctx, msg.RoomID, msg.ID, func(cached *model.MessageSnapshot) {
		cached.Content = snap.Content
		cached.Edited = true
		cached.EditHistory = snap.EditHistory
		cached.UpdatedAt = snap.UpdatedAt
	}); err != nil {
		logger.Error("修补房间缓存失败", zap.String("room", msg.RoomID), zap.String("message_id", msg.ID), zap.Error(err))
	}

	s.broadcast(model.EventMessageEdited, snap)
	metrics.MessagesTotal.WithLabelValues("edited").Inc()
	return snap, nil
}

// MarkLastSeen 记录用户最后看到的消息，失败只记录日志
func (s *ChatService) MarkLastSeen(ctx context.Context, in LastSeenInput) {
	if in.UserID == "" || in.MessageID == "" {
		return
	}
	if err := s.rooms.SetLastSeen(ctx, in.UserID, in.MessageID); err != nil {
		logger.Warn("记录最后已读失败", zap.String("user_id", in.UserID), zap.Error(err))
	}
}

// Join 记录用户为房间成员（连接建立时调用）
func (s *ChatService) Join(ctx context.Context, roomID, userID string) {
	if roomID == "" {
		roomID = s.cfg.DefaultRoom
	}
	if err := s.rooms.JoinRoom(ctx, roomID, userID); err != nil {
		logger.Warn("记录房间成员失败", zap.String("room", roomID), zap.String("user_id", userID), zap.Error(err))
	}
}

// DefaultRoom 默认房间
func (s *ChatService) DefaultRoom() string {
	return s.cfg.DefaultRoom
}

func (s *ChatService) load(ctx context.Context, messageID string) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询消息失败: %w", err)
	}
	return msg, nil
}

func (s *ChatService) broadcast(event string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(event, payload)
}

func (s *ChatService) adjustEngagement(ctx context.Context, userID string, delta int) {
	if s.engagement == nil {
		return
	}
	s.bg.Go(ctx, "engagement", func(ctx context.Context) error {
		return s.engagement.Adjust(ctx, userID, delta)
	})
}
