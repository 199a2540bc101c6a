package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/directory"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/hub"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/internal/router"
	"github.com/weiawesome/autoschool-chat/internal/service"
	"github.com/weiawesome/autoschool-chat/pkg/database"
	"github.com/weiawesome/autoschool-chat/pkg/jwt"
	"github.com/weiawesome/autoschool-chat/pkg/log"
	"github.com/weiawesome/autoschool-chat/pkg/middleware"
)

const testSecret = "test-secret"

type testServer struct {
	srv    *httptest.Server
	db     *gorm.DB
	hub    *hub.Hub
	tokens *jwt.Manager
}

type serverOption func(*config.WebSocketConfig, *config.AuthConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     32,
	}
	authCfg := config.AuthConfig{Secret: testSecret, Issuer: "test", RequireToken: true}
	for _, opt := range opts {
		opt(&wsCfg, &authCfg)
	}

	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.MessageModel{}, &domain.UserModel{}, &domain.AssignmentModel{}))

	tokens, err := jwt.NewManager(authCfg.Secret, authCfg.Issuer, time.Hour, 0)
	require.NoError(t, err)

	wsHub := hub.NewHub(wsCfg)
	ctx, cancel := context.WithCancel(context.Background())
	go wsHub.Run(ctx)

	repo := repository.NewGormMessageRepository(db, 2*time.Second)
	dir := directory.NewGormDirectory(db)
	tracker := service.NewStatusTracker(repo, false)
	conversations := service.NewConversationService(repo, dir, dir, nil, 0)
	messaging := service.NewMessagingService(repo, tracker, conversations, dir, router.New(wsHub, nil), nil)

	engine := gin.New()
	engine.Use(log.GinMiddleware(log.L()))
	NewHTTPHandler(messaging, conversations).RegisterRoutes(engine, middleware.NewAuthMiddleware(tokens, TokenIdentity))
	NewWSHandler(wsHub, messaging, tokens, wsCfg, authCfg).RegisterRoutes(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &testServer{srv: srv, db: db, hub: wsHub, tokens: tokens}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(jwt.Claims{User: &jwt.UserClaim{ID: userID}})
	require.NoError(t, err)
	return tok
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (int, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *testServer) wsURL(query url.Values) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/chat/ws?" + query.Encode()
}

// dial opens an authenticated socket and consumes the connected frame.
func (s *testServer) dial(t *testing.T, userID string) (*websocket.Conn, domain.ConnectedPayload) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(url.Values{"token": {s.token(t, userID)}}), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, expectConnected(t, conn)
}

func expectConnected(t *testing.T, conn *websocket.Conn) domain.ConnectedPayload {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, domain.EventConnected, f.Type)
	var p domain.ConnectedPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p
}

func send(t *testing.T, conn *websocket.Conn, eventType string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(domain.NewEnvelope(eventType, data)))
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env domain.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// expectNoFrame leaves conn unusable for further reads.
func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var env domain.Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "unexpected frame %s", env.Type)
}

// waitForRoom blocks until room has n local members.
func (s *testServer) waitForRoom(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.hub.RoomClientCount(room) == n }, 2*time.Second, 5*time.Millisecond)
}
