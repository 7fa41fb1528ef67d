package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/chatlinkhq/chatlink/server/api/rest"
	"github.com/chatlinkhq/chatlink/server/audit"
	"github.com/chatlinkhq/chatlink/server/auth"
	"github.com/chatlinkhq/chatlink/server/chat"
	"github.com/chatlinkhq/chatlink/server/config"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/chatlinkhq/chatlink/server/notify"
	"github.com/chatlinkhq/chatlink/server/presence"
	"github.com/chatlinkhq/chatlink/server/social"
	"github.com/chatlinkhq/chatlink/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testServer wires the full REST surface over in-memory storage.
type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	reg    *presence.Registry
	auth   *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTL: time.Hour}

	reg := presence.NewRegistry(logger)
	notifier := notify.New(reg, logger)

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	authSvc := auth.NewService(db, c, sec, logger)
	socialSvc := social.NewService(db, notifier, reg, logger)
	chatSvc := chat.NewService(db, notifier, 0, logger)

	authH := rest.NewAuthHandler(authSvc, auditSvc, logger)
	friendsH := rest.NewFriendsHandler(socialSvc, auditSvc, logger)
	messagesH := rest.NewMessagesHandler(chatSvc, logger)

	r := gin.New()
	r.Use(mw.TraceID())

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

	return &testServer{router: r, db: db, reg: reg, auth: authSvc}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(t *testing.T, path, token string, body interface{}) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodPost, path, token, body)
}

func (ts *testServer) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodGet, path, token, nil)
}

// signupAndSignin registers a user and returns their token and ID.
func (ts *testServer) signupAndSignin(t *testing.T, email, username string) (string, int64) {
	t.Helper()
	w := ts.postJSON(t, "/api/v1/user/signup", "", gin.H{
		"email": email, "username": username, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.postJSON(t, "/api/v1/user/signin", "", gin.H{
		"email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	userID, err := ts.auth.SessionUserID(context.Background(), resp.Token)
	require.NoError(t, err)
	return resp.Token, userID
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
