package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/chatlinkhq/chatlink/server/api/rest"
	apisse "github.com/chatlinkhq/chatlink/server/api/sse"
	apows "github.com/chatlinkhq/chatlink/server/api/ws"
	"github.com/chatlinkhq/chatlink/server/audit"
	"github.com/chatlinkhq/chatlink/server/auth"
	"github.com/chatlinkhq/chatlink/server/cache"
	"github.com/chatlinkhq/chatlink/server/chat"
	"github.com/chatlinkhq/chatlink/server/config"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/chatlinkhq/chatlink/server/notify"
	"github.com/chatlinkhq/chatlink/server/presence"
	"github.com/chatlinkhq/chatlink/server/social"
	"github.com/chatlinkhq/chatlink/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Registry *presence.Registry
	Auth     *auth.Service
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	WSURL    string // ws://127.0.0.1:<port>/ws
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTL:         time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	reg := presence.NewRegistry(logger)
	notifier := notify.New(reg, logger)

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	authSvc := auth.NewService(db, c, sec, logger)
	socialSvc := social.NewService(db, notifier, reg, logger)
	chatSvc := chat.NewService(db, notifier, 0, logger)

	wsRouter := apows.NewRouter(logger)
	wsH := apows.NewHandler(db, authSvc, reg, pubsub, sec, wsRouter, logger)
	wsH.RegisterHandlers(wsRouter)

	sseH := apisse.NewHandler(pubsub, authSvc, logger)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(authSvc, auditSvc, logger)
	friendsH := apirest.NewFriendsHandler(socialSvc, auditSvc, logger)
	messagesH := apirest.NewMessagesHandler(chatSvc, logger)

	user := r.Group("/api/v1/user")
	user.POST("/signup", authH.Signup)
	user.POST("/signin", authH.Signin)
	user.POST("/signout", mw.Auth(sec, c), authH.Signout)

	friends := r.Group("/api/v1/friends", mw.Auth(sec, c))
	friends.POST("/friend-request", friendsH.SendFriendRequest)
	friends.GET("/friend-requests", friendsH.ListFriendRequests)
	friends.POST("/friend-request/accept", friendsH.AcceptFriendRequest)
	friends.GET("/friends", friendsH.ListFriends)
	friends.GET("/search/:text", friendsH.Search)
	friends.POST("/send-message", messagesH.SendMessage)
	friends.GET("/messages/:user_id", messagesH.History)

	r.GET("/ws", wsH.ServeWS)
	r.GET("/sse", sseH.ServeSSE)

	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	return &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Registry: reg,
		Auth:     authSvc,
		Server:   server,
		URL:      url,
		WSURL:    wsURL,
		Sec:      sec,
	}
}

// Close shuts down the test server and all connected sessions.
func (ts *TestServer) Close() {
	ts.Registry.CloseAll()
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Signup registers a new account.
func (ts *TestServer) Signup(t *testing.T, email, username, password string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/v1/user/signup", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

// Signin signs in and returns the token and user ID.
func (ts *TestServer) Signin(t *testing.T, email, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/v1/user/signin", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)

	userID, err := ts.Auth.SessionUserID(context.Background(), token)
	require.NoError(t, err)
	return token, userID
}

// SignupAndSignin registers a fresh account and signs it in.
func (ts *TestServer) SignupAndSignin(t *testing.T, username string) (string, int64) {
	t.Helper()
	email := username + "@example.com"
	ts.Signup(t, email, username, "pass1234")
	return ts.Signin(t, email, "pass1234")
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop so a receive timeout never corrupts the
// connection state.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON message packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := map[string]interface{}{
		"type":    msgType,
		"payload": json.RawMessage(payloadJSON),
	}
	data, err := json.Marshal(pkt)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvAny reads one message from the WebSocket with a timeout, returning an
// error instead of failing the test on timeout.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt map[string]interface{}
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, &timeoutError{}
	}
}

// timeoutError implements net.Error for timeout detection in callers.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads messages until one with the given type is found (within timeout).
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt, err := wc.RecvAny(time.Until(deadline))
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt["type"] == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// PayloadMap extracts the payload from a received WS packet as a map.
func PayloadMap(t *testing.T, pkt map[string]interface{}) map[string]interface{} {
	t.Helper()
	p := pkt["payload"]
	if p == nil {
		return map[string]interface{}{}
	}
	switch v := p.(type) {
	case map[string]interface{}:
		return v
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}
}

// UniqueID returns a short unique string suitable for usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
