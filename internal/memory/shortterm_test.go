package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlu-memory-assistant/internal/common/database"
	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
)

func newMiniStore(t *testing.T, ttl time.Duration) (*ShortTermStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return NewShortTermStore(rc, "", ttl, logger.NewTestLogger(t)), mr
}

// ==========================
// Session lifecycle
// ==========================

func TestShortTermStore_Lifecycle(t *testing.T) {
	store, mr := newMiniStore(t, 30*time.Minute)
	ctx := context.Background()

	assert.Equal(t, "sm:conv-1", store.Key("conv-1"))

	exists, err := store.Exists(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Load(ctx, "conv-1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	conv := models.NewConversation("conv-1", "u1")
	require.NoError(t, store.Save(ctx, conv))

	valid, err := store.IsValid(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 30*time.Minute, mr.TTL("sm:conv-1"))

	updated, err := store.AddMessage(ctx, "conv-1", models.NewMessage(models.RoleUser, "สวัสดี"))
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 1)

	loaded, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", loaded.UserID)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "สวัสดี", loaded.Messages[0].Content)

	require.NoError(t, store.Delete(ctx, "conv-1"))
	exists, err = store.Exists(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestShortTermStore_Expiry(t *testing.T) {
	store, mr := newMiniStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.NewConversation("conv-1", "u1")))
	mr.FastForward(2 * time.Minute)

	valid, err := store.IsValid(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = store.AddMessage(ctx, "conv-1", models.NewMessage(models.RoleUser, "hi"))
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestShortTermStore_CorruptSession(t *testing.T) {
	store, mr := newMiniStore(t, time.Minute)
	require.NoError(t, mr.Set("sm:conv-1", "{not json"))

	_, err := store.Load(context.Background(), "conv-1")
	assert.True(t, errors.Is(err, ErrSessionStoreFailed))
}

// ==========================
// Redis failures
// ==========================

func TestShortTermStore_RedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewShortTermStore(database.NewRedisFromClient(db), "sm:", time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()
	down := errors.New("connection refused")

	mock.ExpectGet("sm:conv-1").SetErr(down)
	_, err := store.Load(ctx, "conv-1")
	assert.True(t, errors.Is(err, ErrSessionStoreFailed))
	assert.Equal(t, apperrors.ErrCodeSessionStoreFailed, apperrors.FromError(err).Code)

	mock.ExpectTTL("sm:conv-1").SetErr(down)
	_, err = store.IsValid(ctx, "conv-1")
	assert.True(t, errors.Is(err, ErrSessionStoreFailed))

	mock.ExpectExists("sm:conv-1").SetErr(down)
	_, err = store.Exists(ctx, "conv-1")
	assert.True(t, errors.Is(err, ErrSessionStoreFailed))

	mock.ExpectDel("sm:conv-1").SetErr(down)
	assert.True(t, errors.Is(store.Delete(ctx, "conv-1"), ErrSessionStoreFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}
