package gormpersistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"collaborative-editor/internal/domain"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/testutil"
)

func newRoom(slug string, ownerID uint) (*domain.Room, *domain.RoomMember) {
	now := time.Now()
	room := &domain.Room{
		Slug:         slug,
		Name:         "demo",
		Language:     "go",
		OwnerID:      ownerID,
		SyncMode:     domain.SyncModeVersion,
		Settings:     datatypes.NewJSONType(domain.DefaultRoomSettings()),
		ExpiresAt:    now.Add(30 * 24 * time.Hour),
		LastActivity: now,
	}
	owner := &domain.RoomMember{UserID: ownerID, AccessLevel: domain.AccessOwner, JoinedAt: now, LastActivity: now}
	return room, owner
}

func TestGormRoomRepository_CreateAndFind(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := gormpersistence.NewGormRoomRepository(db)
	ctx := context.Background()

	room, owner := newRoom("abc123", 1)
	require.NoError(t, repo.Create(ctx, room, owner))
	assert.NotZero(t, room.ID)
	assert.Equal(t, room.ID, owner.RoomID)

	found, err := repo.FindBySlug(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), found.Version)
	assert.Equal(t, "", found.Code)
	require.Len(t, found.Members, 1)
	assert.Equal(t, domain.AccessOwner, found.Members[0].AccessLevel)
	assert.Equal(t, 2, found.Settings.Data().TabSize)

	exists, err := repo.SlugExists(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)

	dup, dupOwner := newRoom("abc123", 2)
	assert.ErrorIs(t, repo.Create(ctx, dup, dupOwner), repository.ErrDuplicateEntry)

	_, err = repo.FindBySlug(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestGormRoomRepository_UpdateCodeIfVersion(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := gormpersistence.NewGormRoomRepository(db)
	ctx := context.Background()

	room, owner := newRoom("cas", 1)
	require.NoError(t, repo.Create(ctx, room, owner))

	require.NoError(t, repo.UpdateCodeIfVersion(ctx, room.ID, "a", 0, time.Now()))
	v, err := repo.CurrentVersion(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	// 基于过期版本的写入被拒绝且不修改状态
	err = repo.UpdateCodeIfVersion(ctx, room.ID, "stale", 0, time.Now())
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	found, err := repo.FindBySlug(ctx, "cas")
	require.NoError(t, err)
	assert.Equal(t, "a", found.Code)
	assert.Equal(t, uint64(1), found.Version)
}

func TestGormRoomRepository_CheckpointIncrementsVersion(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := gormpersistence.NewGormRoomRepository(db)
	ctx := context.Background()

	room, owner := newRoom("crdt", 1)
	room.SyncMode = domain.SyncModeCRDT
	require.NoError(t, repo.Create(ctx, room, owner))

	v1, err := repo.Checkpoint(ctx, room.ID, "hello", []byte{1}, time.Now())
	require.NoError(t, err)
	v2, err := repo.Checkpoint(ctx, room.ID, "hello world", []byte{1, 2}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)
	assert.Equal(t, uint64(2), v2)

	found, err := repo.FindBySlug(ctx, room.Slug)
	require.NoError(t, err)
	assert.Equal(t, "hello world", found.Code)
	assert.Equal(t, []byte{1, 2}, found.DocState)

	_, err = repo.Checkpoint(ctx, 9999, "x", nil, time.Now())
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestGormRoomRepository_RecountActiveUsers(t *testing.T) {
	db := testutil.NewTestDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db)
	members := gormpersistence.NewGormMemberRepository(db)
	ctx := context.Background()

	room, owner := newRoom("count", 1)
	require.NoError(t, rooms.Create(ctx, room, owner))
	require.NoError(t, members.Activate(ctx, room.ID, 1, "s-1", time.Now()))
	require.NoError(t, members.Create(ctx, &domain.RoomMember{RoomID: room.ID, UserID: 2, SocketID: "s-2", AccessLevel: domain.AccessViewer, IsActive: true}))

	n, err := rooms.RecountActiveUsers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	changed, err := members.DeactivateIfSocket(ctx, room.ID, 2, "other-socket", time.Now())
	require.NoError(t, err)
	assert.False(t, changed, "a different socket must not deactivate the entry")

	changed, err = members.DeactivateIfSocket(ctx, room.ID, 2, "s-2", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	n, err = rooms.RecountActiveUsers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGormRoomRepository_DeleteExpired(t *testing.T) {
	db := testutil.NewTestDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db)
	chats := gormpersistence.NewGormChatRepository(db)
	ctx := context.Background()

	old, oldOwner := newRoom("old", 1)
	old.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, rooms.Create(ctx, old, oldOwner))
	require.NoError(t, chats.Append(ctx, &domain.ChatMessage{RoomID: old.ID, UserID: 1, Message: "bye", Timestamp: time.Now()}))

	fresh, freshOwner := newRoom("fresh", 1)
	require.NoError(t, rooms.Create(ctx, fresh, freshOwner))

	n, err := rooms.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = rooms.FindBySlug(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
	_, err = rooms.FindBySlug(ctx, "fresh")
	assert.NoError(t, err)

	msgs, err := chats.ListRecent(ctx, old.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGormMemberRepository_AccessAndCursor(t *testing.T) {
	db := testutil.NewTestDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db)
	members := gormpersistence.NewGormMemberRepository(db)
	ctx := context.Background()

	room, owner := newRoom("members", 1)
	require.NoError(t, rooms.Create(ctx, room, owner))
	require.NoError(t, members.Create(ctx, &domain.RoomMember{RoomID: room.ID, UserID: 2, AccessLevel: domain.AccessViewer}))
	assert.ErrorIs(t, members.Create(ctx, &domain.RoomMember{RoomID: room.ID, UserID: 2, AccessLevel: domain.AccessViewer}), repository.ErrDuplicateEntry)

	require.NoError(t, members.UpdateAccessLevel(ctx, room.ID, 2, domain.AccessEditor))
	cursor := &domain.CursorPosition{Line: 4, Column: 2}
	require.NoError(t, members.SaveCursor(ctx, room.ID, 2, cursor, nil))

	m, err := members.Find(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessEditor, m.AccessLevel)
	require.NotNil(t, m.Cursor)
	assert.Equal(t, 4, m.Cursor.Line)
	assert.Nil(t, m.Selection)

	_, err = members.Find(ctx, room.ID, 3)
	assert.ErrorIs(t, err, repository.ErrMemberNotFound)

	err = members.Activate(ctx, room.ID, 3, "s", time.Now())
	assert.ErrorIs(t, err, repository.ErrMemberNotFound)
}

func TestGormChatRepository_ListRecentIsChronological(t *testing.T) {
	db := testutil.NewTestDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db)
	chats := gormpersistence.NewGormChatRepository(db)
	ctx := context.Background()

	room, owner := newRoom("chat", 1)
	require.NoError(t, rooms.Create(ctx, room, owner))
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, chats.Append(ctx, &domain.ChatMessage{RoomID: room.ID, UserID: 1, Message: text, Timestamp: time.Now()}))
	}

	msgs, err := chats.ListRecent(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Message)
	assert.Equal(t, "three", msgs[1].Message)
}
