package service

import (
	"context"
	"errors"
	"testing"

	"mindmate/internal/model"
	"mindmate/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngagement_AwardsBadgeAtThreshold(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, env.users.Create(ctx, &model.User{ID: "u1", Username: "alice", CommunityEngagementStreak: 49}))

	svc := NewEngagementService(env.users)
	require.NoError(t, svc.Adjust(ctx, "u1", 1))

	badges, err := env.users.ListBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"COMMUNITY_ENGAGEMENT_50"}, badges)

	// 回落后再达到阈值不会重复授予
	require.NoError(t, svc.Adjust(ctx, "u1", -1))
	require.NoError(t, svc.Adjust(ctx, "u1", 1))
	badges, err = env.users.ListBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}

func TestEngagement_FloorsAtZero(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.createUser(t, "u1", "alice")

	svc := NewEngagementService(env.users)
	require.NoError(t, svc.Adjust(ctx, "u1", -1))

	user, err := env.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, user.CommunityEngagementStreak)
}

func TestEngagement_UnknownUserIgnored(t *testing.T) {
	env := setupEnv(t)

	svc := NewEngagementService(env.users)
	assert.NoError(t, svc.Adjust(context.Background(), "ghost", 1))
}

func TestEngagement_ConcurrentSendsCounted(t *testing.T) {
	env := setupEnv(t)
	env.createUser(t, "u1", "alice")
	env.sendN(t, "u1", 20)

	user, err := env.users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, user.CommunityEngagementStreak)
}

// badgeFailingStore 计数正常，徽章读写失败
type badgeFailingStore struct {
	*repository.UserRepository
	failList  bool
	failAward bool
}

func (s *badgeFailingStore) ListBadges(ctx context.Context, userID string) ([]string, error) {
	if s.failList {
		return nil, errors.New("badge table unavailable")
	}
	return s.UserRepository.ListBadges(ctx, userID)
}

func (s *badgeFailingStore) AwardBadges(ctx context.Context, userID string, badgeTypes []string) error {
	if s.failAward {
		return errors.New("badge table unavailable")
	}
	return s.UserRepository.AwardBadges(ctx, userID, badgeTypes)
}

func TestEngagement_CounterPersistsWhenBadgeEvaluationFails(t *testing.T) {
	cases := []struct {
		name  string
		store *badgeFailingStore
	}{
		{name: "list badges fails", store: &badgeFailingStore{failList: true}},
		{name: "award badges fails", store: &badgeFailingStore{failAward: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupEnv(t)
			ctx := context.Background()
			require.NoError(t, env.users.Create(ctx, &model.User{ID: "u1", Username: "alice", CommunityEngagementStreak: 49}))
			tc.store.UserRepository = env.users

			svc := NewEngagementService(tc.store)
			require.NoError(t, svc.Adjust(ctx, "u1", 1))

			user, err := env.users.GetByID(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 50, user.CommunityEngagementStreak)

			badges, err := env.users.ListBadges(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, badges)
		})
	}
}
