package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chatlinkhq/chatlink/server/auth"
	"github.com/chatlinkhq/chatlink/server/cache"
	"github.com/chatlinkhq/chatlink/server/presence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	auth   *auth.Service
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, a *auth.Service, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, auth: a, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
// It streams presence change events to authenticated clients, so a client
// can show online indicators without holding the WebSocket open.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")

	authCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.auth.SessionUserID(authCtx, tokenStr); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, presence.PubSubChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: presence\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
