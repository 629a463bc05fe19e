package service_test

import (
	"context"
	"testing"
	"time"

	"collaborative-editor/internal/domain"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	redisstate "collaborative-editor/internal/infra/state/redis"
	"collaborative-editor/internal/service"
	"collaborative-editor/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

// stack 使用真实的 SQLite 与 miniredis 组装服务
type stack struct {
	rooms    *gormpersistence.GormRoomRepository
	members  *gormpersistence.GormMemberRepository
	state    *redisstate.RedisStateRepository
	mr       *miniredis.Miniredis
	room     *service.RoomService
	presence *service.PresenceService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := testutil.NewTestDB(t)
	client, mr := testutil.NewTestRedis(t)

	s := &stack{
		rooms:   gormpersistence.NewGormRoomRepository(db),
		members: gormpersistence.NewGormMemberRepository(db),
		state:   redisstate.NewRedisStateRepository(client, "test:"),
		mr:      mr,
	}
	s.room = service.NewRoomService(s.rooms, s.members, gormpersistence.NewGormChatRepository(db), time.Hour)
	s.presence = service.NewPresenceService(s.rooms, s.members, s.state, time.Minute)
	return s
}

func (s *stack) createRoom(t *testing.T, owner domain.Identity, public bool) *domain.Room {
	t.Helper()
	room, err := s.room.CreateRoom(context.Background(), owner, service.CreateRoomParams{Name: "demo", Language: "go", IsPublic: public})
	require.NoError(t, err)
	return room
}

func (s *stack) reload(t *testing.T, slug string) *domain.Room {
	t.Helper()
	room, err := s.rooms.FindBySlug(context.Background(), slug)
	require.NoError(t, err)
	return room
}

var (
	alice = domain.Identity{UserID: 1, Username: "alice", DisplayName: "Alice"}
	bob   = domain.Identity{UserID: 2, Username: "bob"}
	carol = domain.Identity{UserID: 3, Username: "carol"}
)
