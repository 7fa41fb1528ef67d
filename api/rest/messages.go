package rest

import (
	"net/http"
	"strconv"

	"github.com/chatlinkhq/chatlink/server/chat"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessagesHandler handles direct-message REST endpoints.
type MessagesHandler struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(ch *chat.Service, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{chat: ch, logger: logger}
}

// SendMessage handles POST /api/v1/friends/send-message.
func (h *MessagesHandler) SendMessage(c *gin.Context) {
	userID := mw.GetUserID(c)

	var req struct {
		ReceiverID int64  `json:"receiver_id" binding:"required"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "message sent", "message": msg})
}

// History handles GET /api/v1/friends/messages/:user_id.
func (h *MessagesHandler) History(c *gin.Context) {
	userID := mw.GetUserID(c)

	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), userID, otherID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
