package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/chatlinkhq/chatlink/server/audit"
	"github.com/chatlinkhq/chatlink/server/auth"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler handles signup/signin/signout REST endpoints.
type AuthHandler struct {
	auth   *auth.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(a *auth.Service, au *audit.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: a, audit: au, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6,max=64"`
}

// Signup handles POST /api/v1/user/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	start := time.Now()
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.Signup(c.Request.Context(), req.Email, req.Username, req.Password); err != nil {
		h.audit.Log(audit.Entry{
			TraceID:    mw.GetTraceID(c),
			Action:     "signup",
			Detail:     gin.H{"email": req.Email, "username": req.Username},
			Error:      err.Error(),
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		})
		writeError(c, h.logger, err)
		return
	}

	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Action:     "signup",
		Detail:     gin.H{"email": req.Email, "username": req.Username},
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	c.JSON(http.StatusCreated, gin.H{"msg": "account created"})
}

type signinRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=64"`
}

// Signin handles POST /api/v1/user/signin.
func (h *AuthHandler) Signin(c *gin.Context) {
	start := time.Now()
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.auth.Signin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		UserID:     &user.ID,
		Action:     "signin",
		Detail:     gin.H{"email": req.Email},
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Signout handles POST /api/v1/user/signout.
func (h *AuthHandler) Signout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if err := h.auth.Signout(c.Request.Context(), tokenStr); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "signed out"})
}
