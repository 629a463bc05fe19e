package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// DefaultCursorTTL 光标缓存的默认存活时间
const DefaultCursorTTL = 5 * time.Minute

// NewSocketID 生成连接标识，前缀为所属进程实例，供 Reconcile 区分归属。
func NewSocketID(instanceID string) string {
	return instanceID + "." + ulid.Make().String()
}

// SocketInstance 返回连接标识所属的进程实例
func SocketInstance(socketID string) string {
	if i := strings.LastIndexByte(socketID, '.'); i > 0 {
		return socketID[:i]
	}
	return ""
}

// JoinResult 加入房间的结果
type JoinResult struct {
	Room    *domain.Room
	Member  *domain.RoomMember
	Created bool // 是否新建了成员条目
	Cursors map[uint]repository.CursorState
}

// PresenceService 维护成员条目的活跃状态与光标。
type PresenceService struct {
	roomRepo   repository.RoomRepository
	memberRepo repository.MemberRepository
	stateRepo  repository.StateRepository
	cursorTTL  time.Duration
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(roomRepo repository.RoomRepository, memberRepo repository.MemberRepository, stateRepo repository.StateRepository, cursorTTL time.Duration) *PresenceService {
	if roomRepo == nil || memberRepo == nil || stateRepo == nil {
		panic("repositories cannot be nil for PresenceService")
	}
	if cursorTTL <= 0 {
		cursorTTL = DefaultCursorTTL
	}
	return &PresenceService{
		roomRepo:   roomRepo,
		memberRepo: memberRepo,
		stateRepo:  stateRepo,
		cursorTTL:  cursorTTL,
	}
}

// Join 让用户通过 socketID 加入房间。
// 新用户以 viewer 身份加入 (房主除外)；已有条目只重新激活。
func (s *PresenceService) Join(ctx context.Context, slug string, identity domain.Identity, socketID string) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_slug": slug, "user_id": identity.UserID, "socket_id": socketID})

	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return nil, err
	}
	if err := Authorize(room, identity.UserID, OpJoin); err != nil {
		return nil, err
	}

	now := time.Now()
	result := &JoinResult{Room: room}

	if existing := room.Member(identity.UserID); existing != nil {
		if err := s.memberRepo.Activate(ctx, room.ID, identity.UserID, socketID, now); err != nil {
			logCtx.WithError(err).Error("Failed to reactivate member")
			return nil, mapRepoError(err, ErrNotMember)
		}
		existing.SocketID, existing.IsActive, existing.LastActivity = socketID, true, now
		result.Member = existing
	} else {
		level := domain.AccessViewer
		if room.IsOwner(identity.UserID) {
			level = domain.AccessOwner
		}
		member := &domain.RoomMember{
			RoomID:       room.ID,
			UserID:       identity.UserID,
			SocketID:     socketID,
			AccessLevel:  level,
			IsActive:     true,
			JoinedAt:     now,
			LastActivity: now,
		}
		err := s.memberRepo.Create(ctx, member)
		switch {
		case err == nil:
			result.Created = true
		case errors.Is(err, repository.ErrDuplicateEntry):
			// 同一用户的另一个连接抢先创建了条目
			if err := s.memberRepo.Activate(ctx, room.ID, identity.UserID, socketID, now); err != nil {
				return nil, mapRepoError(err, ErrNotMember)
			}
			if member, err = s.memberRepo.Find(ctx, room.ID, identity.UserID); err != nil {
				return nil, mapRepoError(err, ErrNotMember)
			}
		default:
			logCtx.WithError(err).Error("Failed to create member entry")
			return nil, mapRepoError(err, nil)
		}
		room.Members = append(room.Members, *member)
		result.Member = room.Member(identity.UserID)
	}

	count, err := s.roomRepo.RecountActiveUsers(ctx, room.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to recount active users")
		return nil, mapRepoError(err, nil)
	}
	room.ActiveUsers = count

	cursors, err := s.stateRepo.GetCursors(ctx, slug)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to load cursors, continuing without them")
		cursors = map[uint]repository.CursorState{}
	}
	result.Cursors = cursors

	logCtx.WithFields(logrus.Fields{"created": result.Created, "active_users": count}).Info("User joined room")
	return result, nil
}

// Leave 仅当条目记录的 socket 与 socketID 一致时将其置为不活跃。
// 返回条目是否发生了变化；旧连接的迟到断开不会影响新连接。
func (s *PresenceService) Leave(ctx context.Context, slug string, userID uint, socketID string) (bool, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_slug": slug, "user_id": userID, "socket_id": socketID})

	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return false, err
	}
	changed, err := s.memberRepo.DeactivateIfSocket(ctx, room.ID, userID, socketID, time.Now())
	if err != nil {
		logCtx.WithError(err).Error("Failed to deactivate member")
		return false, mapRepoError(err, nil)
	}
	if !changed {
		logCtx.Debug("Leave ignored: socket does not own the member entry")
		return false, nil
	}
	if _, err := s.roomRepo.RecountActiveUsers(ctx, room.ID); err != nil {
		logCtx.WithError(err).Error("Failed to recount active users")
		return true, mapRepoError(err, nil)
	}

	// 最后的光标写回成员表，缓存随之清除
	cursor, err := s.stateRepo.GetCursor(ctx, slug, userID)
	switch {
	case err == nil:
		if err := s.memberRepo.SaveCursor(ctx, room.ID, userID, &cursor.Position, cursor.Selection); err != nil {
			logCtx.WithError(err).Warn("Failed to persist last cursor")
		}
		if err := s.stateRepo.ClearCursor(ctx, slug, userID); err != nil {
			logCtx.WithError(err).Warn("Failed to clear cursor cache")
		}
	case !errors.Is(err, repository.ErrNotFound):
		logCtx.WithError(err).Warn("Failed to read cursor cache")
	}

	logCtx.Info("User left room")
	return true, nil
}

// UpdateCursor 缓存成员的光标。任何失败都返回 ErrSilentDrop，调用方不应回复错误。
func (s *PresenceService) UpdateCursor(ctx context.Context, slug string, userID uint, position domain.CursorPosition, selection *domain.Selection) error {
	room, err := findRoom(ctx, s.roomRepo, slug)
	if err != nil {
		return ErrSilentDrop
	}
	if err := Authorize(room, userID, OpCursor); err != nil {
		return ErrSilentDrop
	}
	if position.Line < 0 || position.Column < 0 {
		return ErrSilentDrop
	}

	state := repository.CursorState{
		UserID:    userID,
		Position:  position,
		Selection: selection,
		UpdatedAt: time.Now(),
	}
	if err := s.stateRepo.SetCursor(ctx, slug, state, s.cursorTTL); err != nil {
		// 缓存失败不影响广播
		logrus.WithError(err).WithFields(logrus.Fields{"room_slug": slug, "user_id": userID}).Warn("Failed to cache cursor")
	}
	return nil
}

// Reconcile 将记录的 socket 已不存活的活跃条目置为不活跃，并重新计算受影响房间的 activeUsers。
// 本实例的 socket 由 live 判断；其他实例的 socket 以该实例的心跳是否存在判断。
// 返回被置为不活跃的条目数。
func (s *PresenceService) Reconcile(ctx context.Context, instanceID string, live func(socketID string) bool) (int, error) {
	members, err := s.memberRepo.ListActive(ctx)
	if err != nil {
		return 0, mapRepoError(err, nil)
	}

	instances := make(map[string]bool)
	touched := make(map[uint]struct{})
	deactivated := 0
	now := time.Now()

	for _, m := range members {
		owner := SocketInstance(m.SocketID)
		if owner == instanceID {
			if live(m.SocketID) {
				continue
			}
		} else if owner != "" {
			alive, ok := instances[owner]
			if !ok {
				alive, err = s.stateRepo.InstanceAlive(ctx, owner)
				if err != nil {
					// 无法判断时保守处理
					logrus.WithError(err).WithField("instance_id", owner).Warn("Reconcile: failed to check instance heartbeat")
					alive = true
				}
				instances[owner] = alive
			}
			if alive {
				continue
			}
		}

		changed, err := s.memberRepo.DeactivateIfSocket(ctx, m.RoomID, m.UserID, m.SocketID, now)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"room_id": m.RoomID, "user_id": m.UserID}).Warn("Reconcile: failed to deactivate member")
			continue
		}
		if changed {
			deactivated++
			touched[m.RoomID] = struct{}{}
		}
	}

	for roomID := range touched {
		if _, err := s.roomRepo.RecountActiveUsers(ctx, roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Reconcile: failed to recount active users")
		}
	}
	return deactivated, nil
}

// Heartbeat 刷新本实例的存活标记
func (s *PresenceService) Heartbeat(ctx context.Context, instanceID string, ttl time.Duration) error {
	return s.stateRepo.Heartbeat(ctx, instanceID, ttl)
}
