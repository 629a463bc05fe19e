package service

import (
	"context"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"

	"github.com/sirupsen/logrus"
)

// DocumentService 为文档同步通道提供房间加载与快照持久化。
type DocumentService struct {
	roomRepo repository.RoomRepository
}

// NewDocumentService 创建 DocumentService 实例。
func NewDocumentService(roomRepo repository.RoomRepository) *DocumentService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for DocumentService")
	}
	return &DocumentService{roomRepo: roomRepo}
}

// Open 加载使用 CRDT 同步模式的房间
func (s *DocumentService) Open(ctx context.Context, slug string) (*domain.Room, error) {
	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return nil, err
	}
	if room.SyncMode != domain.SyncModeCRDT {
		return nil, ErrSyncModeMismatch
	}
	return room, nil
}

// Checkpoint 持久化扁平化后的文档文本与 CRDT 状态，版本号加一。返回新版本号。
func (s *DocumentService) Checkpoint(ctx context.Context, roomID uint, code string, state []byte) (uint64, error) {
	version, err := s.roomRepo.Checkpoint(ctx, roomID, code, state, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to checkpoint document")
		return 0, mapRepoError(err, ErrRoomNotFound)
	}
	return version, nil
}
