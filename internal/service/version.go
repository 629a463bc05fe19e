package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	// MaxCodeSize 整文档提交的最大字节数
	MaxCodeSize = 1 << 20
	// maxCASAttempts 未指定版本时条件更新的重试次数
	maxCASAttempts = 5
)

// SubmitCodeInput 整文档提交。Version 为空表示以服务端当前版本为基准。
type SubmitCodeInput struct {
	Slug    string
	Code    string
	Version *uint64
}

// CodeChange 一次已持久化的整文档写入
type CodeChange struct {
	Room    *domain.Room
	UserID  uint
	Code    string
	Version uint64
}

// VersionService 实现基于版本号的乐观并发控制。
type VersionService struct {
	roomRepo repository.RoomRepository
}

// NewVersionService 创建 VersionService 实例。
func NewVersionService(roomRepo repository.RoomRepository) *VersionService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for VersionService")
	}
	return &VersionService{roomRepo: roomRepo}
}

// SubmitCode 以版本号为条件写入整个文档。
// 基准版本落后时返回 *VersionConflictError，房间状态不变。
func (s *VersionService) SubmitCode(ctx context.Context, userID uint, in SubmitCodeInput) (*CodeChange, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_slug": in.Slug, "user_id": userID})

	if len(in.Code) > MaxCodeSize {
		return nil, fmt.Errorf("%w: code exceeds %d bytes", ErrInvalidPayload, MaxCodeSize)
	}
	room, err := findRoom(ctx, s.roomRepo, in.Slug)
	if err != nil {
		return nil, err
	}
	if err := Authorize(room, userID, OpEdit); err != nil {
		return nil, err
	}
	if room.SyncMode != domain.SyncModeVersion {
		return nil, ErrSyncModeMismatch
	}

	var version uint64
	if in.Version != nil {
		version, err = s.write(ctx, room.ID, in.Code, *in.Version)
	} else {
		version, err = s.writeLatest(ctx, room.ID, in.Code)
	}
	if err != nil {
		var conflict *VersionConflictError
		if errors.As(err, &conflict) {
			logCtx.WithField("current_version", conflict.CurrentVersion).Info("Code change rejected: stale version")
		} else {
			logCtx.WithError(err).Error("Failed to persist code change")
		}
		return nil, err
	}

	room.Code = in.Code
	room.Version = version
	logCtx.WithField("version", version).Debug("Code change persisted")
	return &CodeChange{Room: room, UserID: userID, Code: in.Code, Version: version}, nil
}

// AuthorizePatch 校验用户能否向房间转发增量补丁。补丁不落库。
func (s *VersionService) AuthorizePatch(ctx context.Context, slug string, userID uint) (*domain.Room, error) {
	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return nil, err
	}
	if err := Authorize(room, userID, OpEdit); err != nil {
		return nil, err
	}
	return room, nil
}

// write 以 base 为基准做一次条件更新，成功后版本号为 base+1
func (s *VersionService) write(ctx context.Context, roomID uint, code string, base uint64) (uint64, error) {
	err := s.roomRepo.UpdateCodeIfVersion(ctx, roomID, code, base, time.Now())
	if err == nil {
		return base + 1, nil
	}
	if !errors.Is(err, repository.ErrVersionConflict) {
		return 0, mapRepoError(err, ErrRoomNotFound)
	}
	current, err := s.roomRepo.CurrentVersion(ctx, roomID)
	if err != nil {
		return 0, mapRepoError(err, ErrRoomNotFound)
	}
	return 0, &VersionConflictError{CurrentVersion: current}
}

// writeLatest 读取当前版本后做条件更新，被其他写入抢先时重试
func (s *VersionService) writeLatest(ctx context.Context, roomID uint, code string) (uint64, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.roomRepo.CurrentVersion(ctx, roomID)
		if err != nil {
			return 0, mapRepoError(err, ErrRoomNotFound)
		}
		version, err := s.write(ctx, roomID, code, current)
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}
