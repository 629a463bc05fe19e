package service_test

import (
	"context"
	"strings"
	"testing"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/repository/mocks"
	"collaborative-editor/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockRoomService(t *testing.T) (*service.RoomService, *mocks.RoomRepository, *mocks.MemberRepository, *mocks.ChatRepository) {
	roomRepo := mocks.NewRoomRepository(t)
	memberRepo := mocks.NewMemberRepository(t)
	chatRepo := mocks.NewChatRepository(t)
	return service.NewRoomService(roomRepo, memberRepo, chatRepo, 0), roomRepo, memberRepo, chatRepo
}

func TestRoomService_CreateRoom(t *testing.T) {
	svc, roomRepo, _, _ := newMockRoomService(t)

	// 第一个 slug 已被占用
	roomRepo.On("SlugExists", mock.Anything, mock.AnythingOfType("string")).Return(true, nil).Once()
	roomRepo.On("SlugExists", mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Once()
	roomRepo.On("Create", mock.Anything,
		mock.MatchedBy(func(r *domain.Room) bool {
			return len(r.Slug) == 10 && r.Slug == strings.ToLower(r.Slug) && r.OwnerID == alice.UserID && r.Version == 0
		}),
		mock.MatchedBy(func(m *domain.RoomMember) bool {
			return m.UserID == alice.UserID && m.AccessLevel == domain.AccessOwner && !m.IsActive
		}),
	).Return(nil).Once()

	room, err := svc.CreateRoom(context.Background(), alice, service.CreateRoomParams{Name: "  pair  ", Language: "go"})
	require.NoError(t, err)

	assert.Equal(t, "pair", room.Name)
	assert.Equal(t, domain.SyncModeVersion, room.SyncMode)
	assert.Equal(t, "vs-dark", room.Settings.Data().Theme)
	assert.True(t, room.ExpiresAt.After(room.CreatedAt))
	require.NotNil(t, room.Member(alice.UserID))
}

func TestRoomService_CreateRoom_RetriesOnSlugRace(t *testing.T) {
	svc, roomRepo, _, _ := newMockRoomService(t)

	roomRepo.On("SlugExists", mock.Anything, mock.Anything).Return(false, nil).Twice()
	roomRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry).Once()
	roomRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.CreateRoom(context.Background(), alice, service.CreateRoomParams{SyncMode: domain.SyncModeCRDT})
	assert.NoError(t, err)
}

func TestRoomService_CreateRoom_InvalidSyncMode(t *testing.T) {
	svc, _, _, _ := newMockRoomService(t)

	_, err := svc.CreateRoom(context.Background(), alice, service.CreateRoomParams{SyncMode: "ot"})
	assert.ErrorIs(t, err, service.ErrInvalidPayload)
}

func TestRoomService_GetRoom_PrivateLooksNotFound(t *testing.T) {
	svc, roomRepo, _, _ := newMockRoomService(t)
	roomRepo.On("FindBySlug", mock.Anything, "gate").Return(newGateRoom(false), nil)

	_, err := svc.GetRoom(context.Background(), "gate", 99)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	room, err := svc.GetRoom(context.Background(), "gate", 3)
	require.NoError(t, err)
	assert.Equal(t, "gate", room.Slug)
}

func TestRoomService_PostChat(t *testing.T) {
	svc, roomRepo, _, chatRepo := newMockRoomService(t)
	roomRepo.On("FindBySlug", mock.Anything, "gate").Return(newGateRoom(true), nil)
	chatRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.ChatMessage")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.ChatMessage).ID = 11
		}).
		Return(nil).Once()

	msg, err := svc.PostChat(context.Background(), "gate", alice, "  hi there ")
	require.NoError(t, err)
	assert.Equal(t, uint(11), msg.ID)
	assert.Equal(t, "hi there", msg.Message)
	assert.Equal(t, "Alice", msg.UserName)

	_, err = svc.PostChat(context.Background(), "gate", domain.Identity{UserID: 99}, "hello")
	assert.ErrorIs(t, err, service.ErrNotMember)

	_, err = svc.PostChat(context.Background(), "gate", alice, "   ")
	assert.ErrorIs(t, err, service.ErrInvalidPayload)

	_, err = svc.PostChat(context.Background(), "gate", alice, strings.Repeat("x", domain.MaxChatMessageLength+1))
	assert.ErrorIs(t, err, service.ErrInvalidPayload)
}

func TestRoomService_UpdateAccess(t *testing.T) {
	svc, roomRepo, memberRepo, _ := newMockRoomService(t)
	roomRepo.On("FindBySlug", mock.Anything, "gate").Return(newGateRoom(false), nil)
	memberRepo.On("UpdateAccessLevel", mock.Anything, uint(1), uint(3), domain.AccessEditor).Return(nil).Once()

	member, err := svc.UpdateAccess(context.Background(), "gate", 1, 3, domain.AccessEditor)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessEditor, member.AccessLevel)

	// 房主自身保持 owner 不产生写入
	member, err = svc.UpdateAccess(context.Background(), "gate", 1, 1, domain.AccessOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessOwner, member.AccessLevel)

	_, err = svc.UpdateAccess(context.Background(), "gate", 2, 3, domain.AccessEditor)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestRoomService_ListChat_ClampsLimit(t *testing.T) {
	svc, roomRepo, _, chatRepo := newMockRoomService(t)
	roomRepo.On("FindBySlug", mock.Anything, "gate").Return(newGateRoom(true), nil)
	chatRepo.On("ListRecent", mock.Anything, uint(1), 200).Return([]domain.ChatMessage{{ID: 1}}, nil).Once()

	msgs, err := svc.ListChat(context.Background(), "gate", 99, 10000)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
