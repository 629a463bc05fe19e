package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	"collaborative-editor/internal/middleware"
	"collaborative-editor/internal/service"
	"collaborative-editor/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (p *recordingPublisher) Publish(slug string, message []byte, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][][]byte)
	}
	p.messages[slug] = append(p.messages[slug], message)
}

type apiFixture struct {
	router    *gin.Engine
	tokens    map[string]string
	publisher *recordingPublisher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)

	users := gormpersistence.NewGormUserRepository(db)
	for _, u := range []domain.User{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}} {
		u := u
		require.NoError(t, users.Save(context.Background(), &u))
	}
	identity, err := service.NewIdentityService(users, "test-secret", 1)
	require.NoError(t, err)

	roomRepo := gormpersistence.NewGormRoomRepository(db)
	rooms := service.NewRoomService(roomRepo, gormpersistence.NewGormMemberRepository(db), gormpersistence.NewGormChatRepository(db), time.Hour)
	publisher := &recordingPublisher{}
	handler := NewRoomHandler(rooms, service.NewVersionService(roomRepo), publisher)
	auth := NewAuthHandler(identity)

	router := gin.New()
	router.POST("/dev/token", auth.IssueDevToken)
	api := router.Group("/api", middleware.Auth(identity))
	api.POST("/rooms", handler.CreateRoom)
	api.GET("/rooms/:slug", handler.GetRoom)
	api.PUT("/rooms/:slug/code", handler.SubmitCode)
	api.GET("/rooms/:slug/chat", handler.ListChat)

	f := &apiFixture{router: router, tokens: map[string]string{}, publisher: publisher}
	for _, name := range []string{"alice", "bob"} {
		w := f.do(t, http.MethodPost, "/dev/token", "", gin.H{"username": name})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp DevTokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		f.tokens[name] = resp.Token
	}
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[user])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) createRoom(t *testing.T, body gin.H) domain.Room {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/rooms", "alice", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room domain.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	return room
}

func TestRoomAPI_CreateAndGet(t *testing.T) {
	f := newAPIFixture(t)
	room := f.createRoom(t, gin.H{"name": "pairing", "language": "go", "isPublic": true})
	assert.Len(t, room.Slug, 10)
	assert.Equal(t, domain.SyncModeVersion, room.SyncMode)
	assert.Equal(t, "vs-dark", room.Settings.Data().Theme)

	w := f.do(t, http.MethodGet, "/api/rooms/"+room.Slug, "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/rooms/"+room.Slug, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/rooms", "alice", gin.H{"syncMode": "ot"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomAPI_PrivateRoomLooksMissing(t *testing.T) {
	f := newAPIFixture(t)
	room := f.createRoom(t, gin.H{"name": "secret"})

	w := f.do(t, http.MethodGet, "/api/rooms/"+room.Slug, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/api/rooms/"+room.Slug+"/code", "bob", gin.H{"code": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/rooms/"+room.Slug+"/chat", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/rooms/"+room.Slug, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoomAPI_SubmitCodeWithVersion(t *testing.T) {
	f := newAPIFixture(t)
	room := f.createRoom(t, gin.H{"isPublic": true})
	path := "/api/rooms/" + room.Slug + "/code"

	w := f.do(t, http.MethodPut, path, "alice", gin.H{"code": "one", "version": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted dto.CodeAcceptedPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, uint64(1), accepted.Version)

	// 基于旧版本的提交被拒绝并返回当前版本
	w = f.do(t, http.MethodPut, path, "alice", gin.H{"code": "two", "version": 0})
	assert.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		CurrentVersion uint64 `json:"currentVersion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, uint64(1), conflict.CurrentVersion)

	// 不带版本号时以当前版本为基准
	w = f.do(t, http.MethodPut, path, "alice", gin.H{"code": "three"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, uint64(2), accepted.Version)

	f.publisher.mu.Lock()
	published := f.publisher.messages[room.Slug]
	f.publisher.mu.Unlock()
	require.Len(t, published, 2)
	env, err := dto.Decode(published[1])
	require.NoError(t, err)
	assert.Equal(t, dto.EventCodeUpdate, env.Event)
	var update dto.CodeUpdatePayload
	require.NoError(t, json.Unmarshal(env.Data, &update))
	assert.Equal(t, "three", update.Code)
	assert.Equal(t, uint(1), update.UserID)
}

func TestRoomAPI_SubmitCodeRejections(t *testing.T) {
	f := newAPIFixture(t)
	room := f.createRoom(t, gin.H{"isPublic": true})
	path := "/api/rooms/" + room.Slug + "/code"

	// 公开房间的非成员没有编辑权限
	w := f.do(t, http.MethodPut, path, "bob", gin.H{"code": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, path, "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	crdtRoom := f.createRoom(t, gin.H{"syncMode": "crdt"})
	w = f.do(t, http.MethodPut, "/api/rooms/"+crdtRoom.Slug+"/code", "alice", gin.H{"code": "x"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPut, "/api/rooms/missing/code", "alice", gin.H{"code": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomAPI_ListChat(t *testing.T) {
	f := newAPIFixture(t)
	room := f.createRoom(t, gin.H{"isPublic": true})

	w := f.do(t, http.MethodGet, "/api/rooms/"+room.Slug+"/chat?limit=10", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/rooms/"+room.Slug+"/chat?limit=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_UnknownUser(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/dev/token", "", gin.H{"username": "mallory"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/dev/token", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
