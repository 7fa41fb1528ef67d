package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatlinkhq/chatlink/server/config"
	"github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/chatlinkhq/chatlink/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authTestRouter(t *testing.T) (*gin.Engine, func(userID int64) string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTL: time.Hour}
	c, _ := testutil.SetupTestCache(t)

	r := gin.New()
	r.GET("/protected", middleware.Auth(sec, c), func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"user_id": middleware.GetUserID(ctx)})
	})

	issue := func(userID int64) string {
		token, err := middleware.GenerateToken(userID, sec.JWTSecret, sec.JWTTTL)
		require.NoError(t, err)
		require.NoError(t, c.Set(context.Background(), "session:"+token, "1", time.Hour))
		return token
	}
	return r, issue
}

func TestAuthAllowsValidSession(t *testing.T) {
	r, issue := authTestRouter(t)
	token := issue(7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":7`)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	r, _ := authTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsMalformedToken(t *testing.T) {
	r, _ := authTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsTokenWithoutSession(t *testing.T) {
	r, _ := authTestRouter(t)

	// Valid signature but no session cache entry (signed out or expired).
	token, err := middleware.GenerateToken(7, "test-secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
