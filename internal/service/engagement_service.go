package service

import (
	"context"
	"errors"
	"fmt"

	"mindmate/internal/badge"
	"mindmate/internal/repository"
	"mindmate/pkg/logger"

	"go.uber.org/zap"
)

// EngagementService 社区参与计数与徽章
type EngagementService struct {
	users UserStore
}

// NewEngagementService 创建EngagementService实例
func NewEngagementService(users UserStore) *EngagementService {
	return &EngagementService{users: users}
}

// Adjust 原子增减社区参与计数，随后重新评估徽章
// 用户不存在时静默忽略；徽章评估失败只记录日志
func (s *EngagementService) Adjust(ctx context.Context, userID string, delta int) error {
	if err := s.users.AdjustCommunityStreak(ctx, userID, delta); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("调整社区参与计数时用户不存在", zap.String("user_id", userID))
			return nil
		}
		return fmt.Errorf("调整社区参与计数失败: %w", err)
	}

	if err := s.evaluateBadges(ctx, userID); err != nil {
		logger.Error("徽章评估失败", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

func (s *EngagementService) evaluateBadges(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	owned, err := s.users.ListBadges(ctx, userID)
	if err != nil {
		return err
	}

	earned := badge.Evaluate(badge.Counters(user), owned)
	if len(earned) == 0 {
		return nil
	}
	if err := s.users.AwardBadges(ctx, userID, earned); err != nil {
		return err
	}

	logger.Info("授予徽章", zap.String("user_id", userID), zap.Strings("badges", earned))
	return nil
}
