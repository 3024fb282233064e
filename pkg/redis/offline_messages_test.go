package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineQueue_DrainInOrderAndClear(t *testing.T) {
	mr, c := setupRedis(t)
	q := NewOfflineQueue(c, time.Hour, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, "u2", snap(i)))
	}
	n, err := q.Count(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, time.Hour, mr.TTL("offline:u2"))

	got, err := q.DrainAndClear(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m001", got[0].ID)
	assert.Equal(t, "m002", got[1].ID)
	assert.Equal(t, "m003", got[2].ID)
	assert.False(t, mr.Exists("offline:u2"))

	again, err := q.DrainAndClear(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestOfflineQueue_EnqueueManyAndCap(t *testing.T) {
	_, c := setupRedis(t)
	q := NewOfflineQueue(c, 0, 2)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.EnqueueMany(ctx, []string{"a", "b"}, snap(i)))
	}
	require.NoError(t, q.EnqueueMany(ctx, nil, snap(9)))

	for _, user := range []string{"a", "b"} {
		got, err := q.DrainAndClear(ctx, user)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "m002", got[0].ID)
		assert.Equal(t, "m003", got[1].ID)
	}
}

func TestOfflineQueue_DefaultCapKeepsNewest(t *testing.T) {
	_, c := setupRedis(t)
	q := NewOfflineQueue(c, time.Hour, 0)
	ctx := context.Background()

	for i := 1; i <= DefaultOfflineMax+5; i++ {
		require.NoError(t, q.Enqueue(ctx, "idle", snap(i)))
	}

	n, err := q.Count(ctx, "idle")
	require.NoError(t, err)
	assert.EqualValues(t, DefaultOfflineMax, n)

	got, err := q.DrainAndClear(ctx, "idle")
	require.NoError(t, err)
	require.Len(t, got, DefaultOfflineMax)
	assert.Equal(t, "m006", got[0].ID)
	assert.Equal(t, "m105", got[len(got)-1].ID)
}

func TestOfflineQueue_DrainSkipsMalformed(t *testing.T) {
	mr, c := setupRedis(t)
	q := NewOfflineQueue(c, time.Hour, 0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "u", snap(1)))
	_, err := mr.Push("offline:u", "garbage")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, "u", snap(2)))

	got, err := q.DrainAndClear(ctx, "u")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m001", got[0].ID)
	assert.Equal(t, "m002", got[1].ID)
}
