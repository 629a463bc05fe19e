package redisstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/domain"
	redisstate "collaborative-editor/internal/infra/state/redis"
	"collaborative-editor/internal/repository"
)

func newTestRepo(t *testing.T) (*redisstate.RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstate.NewRedisStateRepository(client, "test:"), mr
}

func TestRedisStateRepository_Cursors(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	cursor := repository.CursorState{
		UserID:    7,
		Position:  domain.CursorPosition{Line: 3, Column: 9},
		Selection: &domain.Selection{Start: domain.CursorPosition{Line: 3, Column: 1}, End: domain.CursorPosition{Line: 3, Column: 9}},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.SetCursor(ctx, "r1", cursor, time.Minute))
	assert.True(t, mr.Exists("test:room:r1:cursors"))

	got, err := repo.GetCursor(ctx, "r1", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Position.Line)
	require.NotNil(t, got.Selection)
	assert.Equal(t, 1, got.Selection.Start.Column)

	all, err := repo.GetCursors(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, uint(7))

	require.NoError(t, repo.ClearCursor(ctx, "r1", 7))
	_, err = repo.GetCursor(ctx, "r1", 7)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRedisStateRepository_CursorsExpireWithHash(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetCursor(ctx, "r1", repository.CursorState{UserID: 1}, time.Second))
	mr.FastForward(2 * time.Second)

	all, err := repo.GetCursors(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisStateRepository_Lease(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.AcquireLease(ctx, "doc", "instance-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "first holder should acquire the lease")

	ok, err = repo.AcquireLease(ctx, "doc", "instance-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused while the lease is held")

	ok, err = repo.AcquireLease(ctx, "doc", "instance-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "re-acquiring by the same holder renews")

	ok, err = repo.RenewLease(ctx, "doc", "instance-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放不会生效
	require.NoError(t, repo.ReleaseLease(ctx, "doc", "instance-b"))
	assert.True(t, mr.Exists("test:doc:lease:doc"))

	require.NoError(t, repo.ReleaseLease(ctx, "doc", "instance-a"))
	assert.False(t, mr.Exists("test:doc:lease:doc"))

	ok, err = repo.AcquireLease(ctx, "doc", "instance-b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStateRepository_LeaseExpires(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.AcquireLease(ctx, "doc", "instance-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = repo.AcquireLease(ctx, "doc", "instance-b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease can be taken over")
}

func TestRedisStateRepository_Heartbeat(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	alive, err := repo.InstanceAlive(ctx, "i-1")
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, repo.Heartbeat(ctx, "i-1", 30*time.Second))
	alive, err = repo.InstanceAlive(ctx, "i-1")
	require.NoError(t, err)
	assert.True(t, alive)

	mr.FastForward(31 * time.Second)
	alive, err = repo.InstanceAlive(ctx, "i-1")
	require.NoError(t, err)
	assert.False(t, alive)
}
