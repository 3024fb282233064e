package repository

import (
	"context"
	"errors"
	"time"

	"mindmate/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户资料、计数器与徽章
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建UserRepository实例
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据ID获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// AdjustCommunityStreak 原子增减社区参与计数，结果不小于0
// 用户不存在时返回 ErrNotFound
func (r *UserRepository) AdjustCommunityStreak(ctx context.Context, userID string, delta int) error {
	expr := gorm.Expr("community_engagement_streak + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN community_engagement_streak + ? < 0 THEN 0 ELSE community_engagement_streak + ? END", delta, delta)
	}

	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"community_engagement_streak": expr,
			"updated_at":                  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBadges 获取用户已获得的徽章类型
func (r *UserRepository) ListBadges(ctx context.Context, userID string) ([]string, error) {
	var types []string
	err := r.db.WithContext(ctx).
		Model(&model.UserBadge{}).
		Where("user_id = ?", userID).
		Order("awarded_at ASC").
		Pluck("badge_type", &types).Error
	return types, err
}

// AwardBadges 授予徽章，已存在的忽略
func (r *UserRepository) AwardBadges(ctx context.Context, userID string, badgeTypes []string) error {
	if len(badgeTypes) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]model.UserBadge, 0, len(badgeTypes))
	for _, t := range badgeTypes {
		rows = append(rows, model.UserBadge{UserID: userID, BadgeType: t, AwardedAt: now})
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}
