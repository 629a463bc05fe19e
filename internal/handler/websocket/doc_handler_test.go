package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"collaborative-editor/internal/crdt"
	"collaborative-editor/internal/docsync"
	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	redisstate "collaborative-editor/internal/infra/state/redis"
	"collaborative-editor/internal/service"
	"collaborative-editor/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Identity{UserID: 1, Username: "alice"}
	bob   = domain.Identity{UserID: 2, Username: "bob"}
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Publish(_ string, message []byte, _ string) {
	env, err := dto.Decode(message)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, env.Event)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type docFixture struct {
	server    *httptest.Server
	rooms     *service.RoomService
	roomRepo  *gormpersistence.GormRoomRepository
	tokens    map[uint]string
	broadcast *recordingBroadcaster
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	client, _ := testutil.NewTestRedis(t)

	users := gormpersistence.NewGormUserRepository(db)
	for _, u := range []domain.User{{ID: alice.UserID, Username: alice.Username}, {ID: bob.UserID, Username: bob.Username}} {
		u := u
		require.NoError(t, users.Save(context.Background(), &u))
	}
	identity, err := service.NewIdentityService(users, "test-secret", 1)
	require.NoError(t, err)

	roomRepo := gormpersistence.NewGormRoomRepository(db)
	memberRepo := gormpersistence.NewGormMemberRepository(db)
	state := redisstate.NewRedisStateRepository(client, "test:")
	documents := service.NewDocumentService(roomRepo)
	registry := docsync.NewRegistry(documents, state, docsync.Options{InstanceID: "node-1"})
	t.Cleanup(registry.Close)

	broadcast := &recordingBroadcaster{}
	handler := NewDocHandler(identity, documents, service.NewPresenceService(roomRepo, memberRepo, state, time.Minute),
		registry, broadcast, Options{InstanceID: "node-1"})

	router := gin.New()
	router.GET("/ws/doc/:slug", handler.HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	f := &docFixture{
		server:    server,
		rooms:     service.NewRoomService(roomRepo, memberRepo, gormpersistence.NewGormChatRepository(db), time.Hour),
		roomRepo:  roomRepo,
		tokens:    map[uint]string{},
		broadcast: broadcast,
	}
	for _, id := range []uint{alice.UserID, bob.UserID} {
		token, err := identity.IssueToken(id)
		require.NoError(t, err)
		f.tokens[id] = token
	}
	return f
}

func (f *docFixture) createRoom(t *testing.T, mode domain.SyncMode, public bool) string {
	t.Helper()
	room, err := f.rooms.CreateRoom(context.Background(), alice, service.CreateRoomParams{Name: "doc", SyncMode: mode, IsPublic: public})
	require.NoError(t, err)
	return room.Slug
}

func (f *docFixture) dial(t *testing.T, slug, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/doc/" + slug + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) crdt.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)
	frame, err := crdt.DecodeFrame(data)
	require.NoError(t, err)
	return frame
}

// expectClose 读取直到连接关闭，返回关闭码
func expectClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close error, got %v", err)
		return closeErr.Code
	}
}

func TestDocSocket_HandshakeRejections(t *testing.T) {
	f := newDocFixture(t)
	versionRoom := f.createRoom(t, domain.SyncModeVersion, true)
	privateRoom := f.createRoom(t, domain.SyncModeCRDT, false)

	assert.Equal(t, docsync.CloseUnauthorized, expectClose(t, f.dial(t, privateRoom, "bogus")))
	assert.Equal(t, docsync.CloseNotFound, expectClose(t, f.dial(t, "missing", f.tokens[alice.UserID])))
	assert.Equal(t, docsync.CloseSyncModeMismatch, expectClose(t, f.dial(t, versionRoom, f.tokens[alice.UserID])))
	assert.Equal(t, docsync.CloseForbidden, expectClose(t, f.dial(t, privateRoom, f.tokens[bob.UserID])))
}

func TestDocSocket_EditorUpdatesReachViewer(t *testing.T) {
	f := newDocFixture(t)
	slug := f.createRoom(t, domain.SyncModeCRDT, true)

	owner := f.dial(t, slug, f.tokens[alice.UserID])
	assert.Equal(t, crdt.FrameSyncStep1, readFrame(t, owner).Kind)
	viewer := f.dial(t, slug, f.tokens[bob.UserID])
	assert.Equal(t, crdt.FrameSyncStep1, readFrame(t, viewer).Kind)

	local := crdt.NewDoc(1)
	update, err := local.Insert(0, "hello")
	require.NoError(t, err)
	require.NoError(t, owner.WriteMessage(websocket.BinaryMessage, crdt.UpdateFrame(update)))

	frame := readFrame(t, viewer)
	require.Equal(t, crdt.FrameUpdate, frame.Kind)
	received, err := crdt.DecodeUpdate(frame.Payload)
	require.NoError(t, err)
	replica := crdt.NewDoc(2)
	_, err = replica.Apply(received)
	require.NoError(t, err)
	assert.Equal(t, "hello", replica.Text())

	require.Eventually(t, func() bool {
		room, err := f.roomRepo.FindBySlug(context.Background(), slug)
		return err == nil && room.Code == "hello" && room.Version == 1
	}, 2*time.Second, 20*time.Millisecond)

	// 只读连接提交修改会被关闭
	edit, err := replica.Insert(5, "!")
	require.NoError(t, err)
	require.NoError(t, viewer.WriteMessage(websocket.BinaryMessage, crdt.UpdateFrame(edit)))
	assert.Equal(t, docsync.CloseForbidden, expectClose(t, viewer))

	require.Eventually(t, func() bool {
		seen := f.broadcast.seen()
		return len(seen) == 2 && seen[0] == dto.EventUserJoined && seen[1] == dto.EventUserLeft
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDocSocket_MalformedFrameClosesOnlySender(t *testing.T) {
	f := newDocFixture(t)
	slug := f.createRoom(t, domain.SyncModeCRDT, true)

	owner := f.dial(t, slug, f.tokens[alice.UserID])
	readFrame(t, owner)

	require.NoError(t, owner.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x01}))
	assert.Equal(t, websocket.CloseInvalidFramePayloadData, expectClose(t, owner))

	// 文档不受影响，可以重新连接
	again := f.dial(t, slug, f.tokens[alice.UserID])
	assert.Equal(t, crdt.FrameSyncStep1, readFrame(t, again).Kind)
}

func TestDocSocket_TextFrameIsRejected(t *testing.T) {
	f := newDocFixture(t)
	slug := f.createRoom(t, domain.SyncModeCRDT, true)

	owner := f.dial(t, slug, f.tokens[alice.UserID])
	readFrame(t, owner)

	require.NoError(t, owner.WriteMessage(websocket.TextMessage, []byte(`{"event":"code-change"}`)))
	assert.Equal(t, websocket.CloseUnsupportedData, expectClose(t, owner))
}
