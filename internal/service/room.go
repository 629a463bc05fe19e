package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	slugLetters      = "abcdefghijklmnopqrstuvwxyz0123456789"
	slugLength       = 10
	maxSlugAttempts  = 10
	defaultChatLimit = 50
	maxChatLimit     = 200
)

// CreateRoomParams 创建房间的参数
type CreateRoomParams struct {
	Name     string
	Language string
	IsPublic bool
	SyncMode domain.SyncMode
	Settings *domain.RoomSettings
}

// RoomService 负责房间管理相关的业务逻辑。
type RoomService struct {
	roomRepo   repository.RoomRepository
	memberRepo repository.MemberRepository
	chatRepo   repository.ChatRepository
	roomTTL    time.Duration
}

// NewRoomService 创建 RoomService 实例。roomTTL 为房间从创建起的存活时间。
func NewRoomService(roomRepo repository.RoomRepository, memberRepo repository.MemberRepository, chatRepo repository.ChatRepository, roomTTL time.Duration) *RoomService {
	if roomRepo == nil || memberRepo == nil || chatRepo == nil {
		panic("repositories cannot be nil for RoomService")
	}
	if roomTTL <= 0 {
		roomTTL = 30 * 24 * time.Hour
	}
	return &RoomService{
		roomRepo:   roomRepo,
		memberRepo: memberRepo,
		chatRepo:   chatRepo,
		roomTTL:    roomTTL,
	}
}

// CreateRoom 创建一个新房间，房主条目同时写入，初始为不活跃。
func (s *RoomService) CreateRoom(ctx context.Context, owner domain.Identity, params CreateRoomParams) (*domain.Room, error) {
	logCtx := logrus.WithField("user_id", owner.UserID)

	mode := params.SyncMode
	if mode == "" {
		mode = domain.SyncModeVersion
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown sync mode %q", ErrInvalidPayload, mode)
	}
	settings := domain.DefaultRoomSettings()
	if params.Settings != nil {
		settings = *params.Settings
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = "Untitled"
	}

	now := time.Now()
	var room *domain.Room
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug, err := s.generateUniqueSlug(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate unique room slug")
			return nil, ErrInternalServer
		}

		room = &domain.Room{
			Slug:         slug,
			Name:         name,
			Language:     params.Language,
			OwnerID:      owner.UserID,
			IsPublic:     params.IsPublic,
			SyncMode:     mode,
			ExpiresAt:    now.Add(s.roomTTL),
			LastActivity: now,
			Settings:     datatypes.NewJSONType(settings),
		}
		ownerEntry := &domain.RoomMember{
			UserID:       owner.UserID,
			AccessLevel:  domain.AccessOwner,
			JoinedAt:     now,
			LastActivity: now,
		}

		err = s.roomRepo.Create(ctx, room, ownerEntry)
		if err == nil {
			room.Members = []domain.RoomMember{*ownerEntry}
			logCtx.WithFields(logrus.Fields{"room_slug": room.Slug, "sync_mode": mode}).Info("Room created successfully")
			return room, nil
		}
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Error("Failed to save new room to database")
			return nil, ErrInternalServer
		}
		// 两个请求同时拿到同一个 slug，重新生成
		logCtx.WithField("room_slug", slug).Warn("Room slug taken between check and insert, retrying")
	}
	return nil, ErrInternalServer
}

// GetRoom 返回房间。私有房间对非成员表现为不存在。
func (s *RoomService) GetRoom(ctx context.Context, slug string, userID uint) (*domain.Room, error) {
	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return nil, err
	}
	if err := Authorize(room, userID, OpJoin); err != nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// PostChat 校验并保存一条聊天消息，返回已保存的消息。
func (s *RoomService) PostChat(ctx context.Context, slug string, sender domain.Identity, message string) (*domain.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > domain.MaxChatMessageLength {
		return nil, fmt.Errorf("%w: message must be 1-%d characters", ErrInvalidPayload, domain.MaxChatMessageLength)
	}

	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return nil, err
	}
	if err := Authorize(room, sender.UserID, OpChat); err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		RoomID:    room.ID,
		UserID:    sender.UserID,
		UserName:  sender.Name(),
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := s.chatRepo.Append(ctx, msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_slug": slug, "user_id": sender.UserID}).Error("Failed to append chat message")
		return nil, mapRepoError(err, nil)
	}
	return msg, nil
}

// ListChat 返回最近的聊天记录，可见性规则与 GetRoom 相同。
func (s *RoomService) ListChat(ctx context.Context, slug string, userID uint, limit int) ([]domain.ChatMessage, error) {
	room, err := s.GetRoom(ctx, slug, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultChatLimit
	}
	if limit > maxChatLimit {
		limit = maxChatLimit
	}
	msgs, err := s.chatRepo.ListRecent(ctx, room.ID, limit)
	if err != nil {
		return nil, mapRepoError(err, nil)
	}
	return msgs, nil
}

// UpdateAccess 由房主修改成员的权限级别，返回修改后的成员条目。
func (s *RoomService) UpdateAccess(ctx context.Context, slug string, actingUserID, targetUserID uint, level domain.AccessLevel) (*domain.RoomMember, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_slug": slug, "user_id": actingUserID, "target_user_id": targetUserID})

	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return nil, err
	}
	noop, err := ValidateAccessChange(room, actingUserID, targetUserID, level)
	if err != nil {
		logCtx.WithError(err).Warn("Access change rejected")
		return nil, err
	}

	target := *room.Member(targetUserID)
	if noop {
		return &target, nil
	}
	if err := s.memberRepo.UpdateAccessLevel(ctx, room.ID, targetUserID, level); err != nil {
		logCtx.WithError(err).Error("Failed to update access level")
		return nil, mapRepoError(err, ErrNotMember)
	}
	target.AccessLevel = level
	logCtx.WithField("access_level", level).Info("Access level updated")
	return &target, nil
}

// SweepExpired 删除所有已过期的房间，返回删除数量。
func (s *RoomService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.roomRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return n, fmt.Errorf("sweep expired rooms: %w", err)
	}
	return n, nil
}

// generateUniqueSlug 生成未被占用的房间 slug
func (s *RoomService) generateUniqueSlug(ctx context.Context) (string, error) {
	b := make([]byte, slugLength)
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = slugLetters[int(b[i])%len(slugLetters)]
		}
		slug := string(b)

		exists, err := s.roomRepo.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("database error checking slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		logrus.WithField("room_slug", slug).Warnf("Generated slug already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique slug after %d attempts", maxSlugAttempts)
}

// findRoom 按 slug 加载房间 (含成员)，并映射仓库错误。
func findRoom(ctx context.Context, repo repository.RoomRepository, slug string) (*domain.Room, error) {
	if slug == "" {
		return nil, ErrRoomNotFound
	}
	room, err := repo.FindBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			logrus.WithError(err).WithField("room_slug", slug).Error("Failed to load room")
		}
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}
