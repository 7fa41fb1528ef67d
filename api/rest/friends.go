package rest

import (
	"net/http"
	"time"

	"github.com/chatlinkhq/chatlink/server/audit"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/chatlinkhq/chatlink/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FriendsHandler handles friendship REST endpoints.
type FriendsHandler struct {
	social *social.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewFriendsHandler creates a new FriendsHandler.
func NewFriendsHandler(s *social.Service, au *audit.Service, logger *zap.Logger) *FriendsHandler {
	return &FriendsHandler{social: s, audit: au, logger: logger}
}

// SendFriendRequest handles POST /api/v1/friends/friend-request.
func (h *FriendsHandler) SendFriendRequest(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)

	var req struct {
		FriendID int64 `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edge, err := h.social.Request(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		UserID:     &userID,
		Action:     "friend_request",
		Detail:     gin.H{"friend_id": req.FriendID, "request_id": edge.ID},
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	c.JSON(http.StatusCreated, gin.H{"msg": "friend request sent", "friendship": edge})
}

// ListFriendRequests handles GET /api/v1/friends/friend-requests.
func (h *FriendsHandler) ListFriendRequests(c *gin.Context) {
	userID := mw.GetUserID(c)
	reqs, err := h.social.ListPending(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friend_requests": reqs})
}

// AcceptFriendRequest handles POST /api/v1/friends/friend-request/accept.
func (h *FriendsHandler) AcceptFriendRequest(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)

	var req struct {
		RequestID int64 `json:"request_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.social.Accept(c.Request.Context(), userID, req.RequestID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		UserID:     &userID,
		Action:     "friend_accept",
		Detail:     gin.H{"request_id": req.RequestID},
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	c.JSON(http.StatusOK, gin.H{"msg": "friend request accepted"})
}

// ListFriends handles GET /api/v1/friends/friends.
func (h *FriendsHandler) ListFriends(c *gin.Context) {
	userID := mw.GetUserID(c)
	friends, err := h.social.ListFriends(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// Search handles GET /api/v1/friends/search/:text.
func (h *FriendsHandler) Search(c *gin.Context) {
	userID := mw.GetUserID(c)
	results, err := h.social.Search(c.Request.Context(), userID, c.Param("text"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}
