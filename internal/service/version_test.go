package service_test

import (
	"context"
	"errors"
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

func newVersionRoom(mode domain.SyncMode) *domain.Room {
	room := newGateRoom(false)
	room.Slug = "vroom"
	room.SyncMode = mode
	room.Version = 3
	return room
}

func u64(v uint64) *uint64 { return &v }

func TestVersionService_SubmitCode_WithVersion(t *testing.T) {
	roomRepo := mocks.NewRoomRepository(t)
	svc := service.NewVersionService(roomRepo)
	ctx := context.Background()

	roomRepo.On("FindBySlug", mock.Anything, "vroom").Return(newVersionRoom(domain.SyncModeVersion), nil).Once()
	roomRepo.On("UpdateCodeIfVersion", mock.Anything, uint(1), "print(1)", uint64(3), mock.AnythingOfType("time.Time")).Return(nil).Once()

	change, err := svc.SubmitCode(ctx, 2, service.SubmitCodeInput{Slug: "vroom", Code: "print(1)", Version: u64(3)})

	require.NoError(t, err)
	assert.Equal(t, uint64(4), change.Version)
	assert.Equal(t, "print(1)", change.Code)
	assert.Equal(t, uint(2), change.UserID)
	assert.Equal(t, uint64(4), change.Room.Version)
}

func TestVersionService_SubmitCode_StaleVersion(t *testing.T) {
	roomRepo := mocks.NewRoomRepository(t)
	svc := service.NewVersionService(roomRepo)

	roomRepo.On("FindBySlug", mock.Anything, "vroom").Return(newVersionRoom(domain.SyncModeVersion), nil).Once()
	roomRepo.On("UpdateCodeIfVersion", mock.Anything, uint(1), "stale", uint64(2), mock.Anything).Return(repository.ErrVersionConflict).Once()
	roomRepo.On("CurrentVersion", mock.Anything, uint(1)).Return(uint64(7), nil).Once()

	_, err := svc.SubmitCode(context.Background(), 2, service.SubmitCodeInput{Slug: "vroom", Code: "stale", Version: u64(2)})

	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrVersionConflict)
	var conflict *service.VersionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(7), conflict.CurrentVersion)
}

func TestVersionService_SubmitCode_WithoutVersionRetriesOnRace(t *testing.T) {
	roomRepo := mocks.NewRoomRepository(t)
	svc := service.NewVersionService(roomRepo)

	roomRepo.On("FindBySlug", mock.Anything, "vroom").Return(newVersionRoom(domain.SyncModeVersion), nil).Once()
	// 第一次读取后被另一写入抢先
	roomRepo.On("CurrentVersion", mock.Anything, uint(1)).Return(uint64(3), nil).Once()
	roomRepo.On("UpdateCodeIfVersion", mock.Anything, uint(1), "x", uint64(3), mock.Anything).Return(repository.ErrVersionConflict).Once()
	roomRepo.On("CurrentVersion", mock.Anything, uint(1)).Return(uint64(4), nil).Twice()
	roomRepo.On("UpdateCodeIfVersion", mock.Anything, uint(1), "x", uint64(4), mock.Anything).Return(nil).Once()

	change, err := svc.SubmitCode(context.Background(), 1, service.SubmitCodeInput{Slug: "vroom", Code: "x"})

	require.NoError(t, err)
	assert.Equal(t, uint64(5), change.Version)
}

func TestVersionService_SubmitCode_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		room    *domain.Room
		findErr error
		userID  uint
		code    string
		wantErr error
	}{
		{"viewer cannot edit", newVersionRoom(domain.SyncModeVersion), nil, 3, "x", service.ErrPermissionDenied},
		{"runner cannot edit", newVersionRoom(domain.SyncModeVersion), nil, 4, "x", service.ErrPermissionDenied},
		{"non member cannot edit", newVersionRoom(domain.SyncModeVersion), nil, 42, "x", service.ErrNotMember},
		{"crdt room refuses whole document writes", newVersionRoom(domain.SyncModeCRDT), nil, 2, "x", service.ErrSyncModeMismatch},
		{"unknown room", nil, repository.ErrRoomNotFound, 2, "x", service.ErrRoomNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roomRepo := mocks.NewRoomRepository(t)
			svc := service.NewVersionService(roomRepo)
			roomRepo.On("FindBySlug", mock.Anything, "vroom").Return(tt.room, tt.findErr).Once()

			_, err := svc.SubmitCode(context.Background(), tt.userID, service.SubmitCodeInput{Slug: "vroom", Code: tt.code, Version: u64(3)})

			assert.ErrorIs(t, err, tt.wantErr)
			roomRepo.AssertNotCalled(t, "UpdateCodeIfVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestVersionService_SubmitCode_OversizedPayload(t *testing.T) {
	roomRepo := mocks.NewRoomRepository(t)
	svc := service.NewVersionService(roomRepo)

	_, err := svc.SubmitCode(context.Background(), 2, service.SubmitCodeInput{Slug: "vroom", Code: strings.Repeat("a", service.MaxCodeSize+1)})

	assert.ErrorIs(t, err, service.ErrInvalidPayload)
}

func TestVersionService_SubmitCode_StorageFailure(t *testing.T) {
	roomRepo := mocks.NewRoomRepository(t)
	svc := service.NewVersionService(roomRepo)

	roomRepo.On("FindBySlug", mock.Anything, "vroom").Return(newVersionRoom(domain.SyncModeVersion), nil).Once()
	roomRepo.On("UpdateCodeIfVersion", mock.Anything, uint(1), "x", uint64(3), mock.Anything).Return(errors.New("connection reset")).Once()

	_, err := svc.SubmitCode(context.Background(), 2, service.SubmitCodeInput{Slug: "vroom", Code: "x", Version: u64(3)})

	assert.ErrorIs(t, err, service.ErrPersistence)
}

func TestVersionService_AuthorizePatch(t *testing.T) {
	roomRepo := mocks.NewRoomRepository(t)
	svc := service.NewVersionService(roomRepo)
	roomRepo.On("FindBySlug", mock.Anything, "vroom").Return(newVersionRoom(domain.SyncModeVersion), nil)

	_, err := svc.AuthorizePatch(context.Background(), "vroom", 2)
	assert.NoError(t, err)

	_, err = svc.AuthorizePatch(context.Background(), "vroom", 3)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}
