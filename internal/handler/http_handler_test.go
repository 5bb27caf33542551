package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/hub"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/repository"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/service"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/database"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/jwt"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/middleware"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/response"
)

type apiFixture struct {
	router *gin.Engine
	bus    *pubsub.MemoryPubSub
	hub    *hub.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{
		Driver:   database.DriverSQLite,
		FilePath: filepath.Join(t.TempDir(), "api.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	repo := repository.NewGormChatRepository(db)
	require.NoError(t, repo.Migrate())

	bus := pubsub.NewMemoryPubSub(64)
	t.Cleanup(func() { bus.Close() })

	tokens, err := jwt.NewManager("test-secret", time.Hour, 24*time.Hour, "test")
	require.NoError(t, err)

	authSvc := service.NewAuthService(repo, tokens, bcrypt.MinCost)
	chatSvc := service.NewChatService(repo, bus, nil, 0)
	authMw := middleware.NewAuthMiddleware(authSvc)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	wsHub := hub.NewHub()
	go wsHub.Run(ctx)

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	}
	feedClient := feed.NewClient(bus, feed.WithReconnectDelay(20*time.Millisecond))

	r := gin.New()
	r.Use(log.GinMiddleware(log.Nop()))
	NewHandler(authSvc, chatSvc, authMw).RegisterRoutes(r)
	NewWSHandler(ctx, wsHub, chatSvc, feedClient, authMw, wsCfg).RegisterRoutes(r)

	return &apiFixture{router: r, bus: bus, hub: wsHub}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) *response.ErrorInfo {
	t.Helper()
	var env struct {
		Success bool                `json:"success"`
		Data    json.RawMessage     `json:"data"`
		Error   *response.ErrorInfo `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && env.Success {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.Error
}

func (f *apiFixture) register(t *testing.T, name string) domain.AuthResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Email:       name + "@example.com",
		Username:    name,
		Password:    "secret123",
		DisplayName: strings.ToUpper(name[:1]) + name[1:],
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var auth domain.AuthResponse
	decode(t, rec, &auth)
	return auth
}

func (f *apiFixture) conversation(t *testing.T, token, participantID string) domain.Conversation {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/conversations", token, domain.CreateConversationRequest{ParticipantID: participantID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var conv domain.Conversation
	decode(t, rec, &conv)
	return conv
}

func TestAuthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ana := f.register(t, "ana")
	assert.NotEmpty(t, ana.AccessToken)
	assert.Equal(t, "Ana", ana.User.DisplayName)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login domain.AuthResponse
	decode(t, rec, &login)
	assert.Equal(t, ana.UserID, login.UserID)

	rec = f.do(t, http.MethodGet, "/api/v1/users/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.UserSummary
	decode(t, rec, &me)
	assert.Equal(t, "ana@example.com", me.Email)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/v1/auth/register",
			body:   domain.RegisterRequest{Email: "ana@example.com", Username: "ana2", Password: "secret123"},
			status: http.StatusConflict,
		},
		{
			name: "malformed register", method: http.MethodPost, path: "/api/v1/auth/register",
			body:   map[string]string{"email": "not-an-email"},
			status: http.StatusBadRequest,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/v1/auth/login",
			body:   domain.LoginRequest{Email: "ana@example.com", Password: "nope"},
			status: http.StatusUnauthorized,
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/v1/auth/login",
			body:   domain.LoginRequest{Email: "nadie@example.com", Password: "secret123"},
			status: http.StatusUnauthorized,
		},
		{name: "no token", method: http.MethodGet, path: "/api/v1/users/me", status: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/api/v1/users", token: "garbage", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestListUsersExcludesCaller(t *testing.T) {
	f := newAPIFixture(t)
	ana := f.register(t, "ana")
	f.register(t, "bruno")
	f.register(t, "carla")

	rec := f.do(t, http.MethodGet, "/api/v1/users", ana.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []domain.UserSummary
	decode(t, rec, &users)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, ana.UserID, u.ID)
	}

	var env struct {
		Meta response.Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Meta.Count)
}

func TestConversationEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ana := f.register(t, "ana")
	bruno := f.register(t, "bruno")
	carla := f.register(t, "carla")

	conv := f.conversation(t, ana.AccessToken, bruno.UserID)
	again := f.conversation(t, bruno.AccessToken, ana.UserID)
	assert.Equal(t, conv.ID, again.ID, "one conversation per pair")

	rec := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", ana.AccessToken,
		SendMessageRequest{Content: "Hola", ClientRef: "tmp-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg domain.Message
	decode(t, rec, &msg)
	assert.Equal(t, "Hola", msg.Content)
	assert.Equal(t, "tmp-01", msg.ClientRef)
	assert.Equal(t, ana.UserID, msg.SenderID)

	rec = f.do(t, http.MethodGet, "/api/v1/conversations", bruno.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []domain.Conversation
	decode(t, rec, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessagePreview)
	assert.Equal(t, "Hola", *convs[0].LastMessagePreview)
	require.NotNil(t, convs[0].Counterpart)
	assert.Equal(t, ana.UserID, convs[0].Counterpart.ID)

	rec = f.do(t, http.MethodGet, "/api/v1/conversations?q=ANA", bruno.AccessToken, nil)
	decode(t, rec, &convs)
	assert.Len(t, convs, 1)
	rec = f.do(t, http.MethodGet, "/api/v1/conversations?q=bicicleta", bruno.AccessToken, nil)
	decode(t, rec, &convs)
	assert.Empty(t, convs)

	rec = f.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", bruno.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []domain.Message
	decode(t, rec, &msgs)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsRead)

	rec = f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", bruno.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/conversations", bruno.AccessToken, nil)
	decode(t, rec, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		code   string
	}{
		{
			name: "self conversation", method: http.MethodPost, path: "/api/v1/conversations", token: ana.AccessToken,
			body: domain.CreateConversationRequest{ParticipantID: ana.UserID}, status: http.StatusUnprocessableEntity, code: response.CodeValidation,
		},
		{
			name: "unknown participant", method: http.MethodPost, path: "/api/v1/conversations", token: ana.AccessToken,
			body: domain.CreateConversationRequest{ParticipantID: "missing"}, status: http.StatusNotFound, code: response.CodeNotFound,
		},
		{
			name: "blank content", method: http.MethodPost, path: "/api/v1/conversations/" + conv.ID + "/messages", token: ana.AccessToken,
			body: SendMessageRequest{Content: "  \n "}, status: http.StatusUnprocessableEntity, code: response.CodeValidation,
		},
		{
			name: "content too long", method: http.MethodPost, path: "/api/v1/conversations/" + conv.ID + "/messages", token: ana.AccessToken,
			body: SendMessageRequest{Content: strings.Repeat("a", domain.MaxMessageLength+1)}, status: http.StatusUnprocessableEntity, code: response.CodeValidation,
		},
		{
			name: "outsider reads", method: http.MethodGet, path: "/api/v1/conversations/" + conv.ID + "/messages", token: carla.AccessToken,
			status: http.StatusForbidden, code: response.CodeForbidden,
		},
		{
			name: "outsider sends", method: http.MethodPost, path: "/api/v1/conversations/" + conv.ID + "/messages", token: carla.AccessToken,
			body: SendMessageRequest{Content: "hola"}, status: http.StatusForbidden, code: response.CodeForbidden,
		},
		{
			name: "outsider marks read", method: http.MethodPost, path: "/api/v1/conversations/" + conv.ID + "/read", token: carla.AccessToken,
			status: http.StatusForbidden, code: response.CodeForbidden,
		},
		{
			name: "unknown conversation", method: http.MethodGet, path: "/api/v1/conversations/missing/messages", token: ana.AccessToken,
			status: http.StatusNotFound, code: response.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			errInfo := decode(t, rec, nil)
			require.NotNil(t, errInfo)
			assert.Equal(t, tt.code, errInfo.Code)
		})
	}
}

func TestMaxLengthContentAccepted(t *testing.T) {
	f := newAPIFixture(t)
	ana := f.register(t, "ana")
	bruno := f.register(t, "bruno")
	conv := f.conversation(t, ana.AccessToken, bruno.UserID)

	rec := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", ana.AccessToken,
		SendMessageRequest{Content: strings.Repeat("ñ", domain.MaxMessageLength)})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
