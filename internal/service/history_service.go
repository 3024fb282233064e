package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mindmate/config"
	"mindmate/internal/model"
	"mindmate/internal/repository"
	"mindmate/pkg/logger"
	"mindmate/pkg/metrics"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// 可接受的 before 时间格式
var cursorTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// HistoryService 聊天历史：最新一页走缓存，翻页走持久化日志
type HistoryService struct {
	messages MessageStore
	cache    RoomCache
	bg       *Background
	cfg      config.ChatConfig
}

// NewHistoryService 创建HistoryService实例
func NewHistoryService(messages MessageStore, cache RoomCache, bg *Background, cfg config.ChatConfig) *HistoryService {
	return &HistoryService{
		messages: messages,
		cache:    cache,
		bg:       bg,
		cfg:      cfg,
	}
}

// GetHistory 获取房间历史，结果旧消息在前
// before 为空时返回最近一页（整个缓存窗口），否则返回严格早于游标的 limit 条
func (s *HistoryService) GetHistory(ctx context.Context, roomID, before string, limit int) ([]*model.MessageSnapshot, error) {
	if roomID == "" {
		roomID = s.cfg.DefaultRoom
	}

	if before == "" {
		return s.latest(ctx, roomID)
	}

	return s.page(ctx, roomID, before, s.clampLimit(limit))
}

func (s *HistoryService) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if s.cfg.HistoryMaxLimit > 0 && limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}
	if limit <= 0 {
		limit = 50
	}
	return limit
}

// latest 缓存命中直接返回；未命中查库并在后台回填缓存
func (s *HistoryService) latest(ctx context.Context, roomID string) ([]*model.MessageSnapshot, error) {
	cached, err := s.cache.ReadAll(ctx, roomID)
	if err != nil {
		logger.Warn("读取房间缓存失败，回退到数据库", zap.String("room", roomID), zap.Error(err))
	}
	if len(cached) > 0 {
		metrics.HistoryReads.WithLabelValues("cache").Inc()
		return cached, nil
	}

	messages, err := s.messages.Latest(ctx, roomID, s.cache.Capacity())
	if err != nil {
		return nil, fmt.Errorf("查询最新消息失败: %w", err)
	}
	reverse(messages)
	snapshots := model.Snapshots(messages)
	metrics.HistoryReads.WithLabelValues("store").Inc()

	if len(snapshots) > 0 {
		backfill := snapshots
		s.bg.Go(ctx, "cache_backfill", func(ctx context.Context) error {
			_, err := s.cache.Repopulate(ctx, roomID, backfill)
			return err
		})
	}

	return snapshots, nil
}

// page 游标翻页，不访问缓存
func (s *HistoryService) page(ctx context.Context, roomID, before string, limit int) ([]*model.MessageSnapshot, error) {
	cursor, ok, err := s.resolveCursor(ctx, before)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*model.MessageSnapshot{}, nil
	}

	messages, err := s.messages.Before(ctx, roomID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("查询历史消息失败: %w", err)
	}
	reverse(messages)
	metrics.HistoryReads.WithLabelValues("cursor").Inc()

	return model.Snapshots(messages), nil
}

// resolveCursor 解析 before：消息ID 或 时间
// 消息ID不存在时 ok=false（返回空结果而不是错误）
func (s *HistoryService) resolveCursor(ctx context.Context, before string) (repository.Cursor, bool, error) {
	before = strings.TrimSpace(before)

	if id, err := ulid.ParseStrict(before); err == nil {
		ref, err := s.messages.GetByID(ctx, id.String())
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Cursor{}, false, nil
		}
		if err != nil {
			return repository.Cursor{}, false, fmt.Errorf("查询游标消息失败: %w", err)
		}
		return repository.Cursor{CreatedAt: ref.CreatedAt, ID: ref.ID}, true, nil
	}

	if t, ok := parseCursorTime(before); ok {
		return repository.Cursor{CreatedAt: t}, true, nil
	}

	return repository.Cursor{}, false, ErrInvalidCursor
}

func parseCursorTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range cursorTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	// Unix 毫秒
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms >= 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func reverse(messages []*model.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
