package repository

import (
	"context"
	"errors"
	"time"

	"mindmate/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cursor 翻页游标：严格早于 (CreatedAt, ID) 的记录
// ID 为空时只按时间比较
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// MessageRepository 消息持久化日志
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// withSender 预加载发送者公开资料
func withSender(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Sender", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "username", "fullname")
	})
}

// Create 创建消息
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error
}

// Save 保存整条消息（编辑）
func (r *MessageRepository) Save(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(message).Error
}

// MarkDeleted 软删除未删除的消息，返回本次是否生效
// 条件更新保证并发删除只有一个成功
func (r *MessageRepository) MarkDeleted(ctx context.Context, id, deletedBy string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_by": deletedBy,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID 根据ID获取消息（含发送者资料）
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var message model.Message
	err := withSender(r.db.WithContext(ctx)).Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &message, nil
}

// Latest 获取房间最近的 limit 条消息，新消息在前
func (r *MessageRepository) Latest(ctx context.Context, roomID string, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := withSender(r.db.WithContext(ctx)).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// Before 获取严格早于游标的 limit 条消息，新消息在前
func (r *MessageRepository) Before(ctx context.Context, roomID string, cursor Cursor, limit int) ([]*model.Message, error) {
	q := withSender(r.db.WithContext(ctx)).Where("room_id = ?", roomID)
	if cursor.ID != "" {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	} else {
		q = q.Where("created_at < ?", cursor.CreatedAt)
	}

	var messages []*model.Message
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
