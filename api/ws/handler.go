package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chatlinkhq/chatlink/server/auth"
	"github.com/chatlinkhq/chatlink/server/cache"
	"github.com/chatlinkhq/chatlink/server/config"
	"github.com/chatlinkhq/chatlink/server/model"
	"github.com/chatlinkhq/chatlink/server/presence"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	db       *gorm.DB
	auth     *auth.Service
	reg      *presence.Registry
	pubsub   cache.PubSub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	a *auth.Service,
	reg *presence.Registry,
	pubsub cache.PubSub,
	sec config.SecurityConfig,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:     db,
		auth:   a,
		reg:    reg,
		pubsub: pubsub,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// RegisterHandlers wires the inbound message types this handler understands.
// Clients only send heartbeats in this protocol; all state changes go over
// REST and are pushed back out as events.
func (h *Handler) RegisterHandlers(r *Router) {
	r.On("ping", h.handlePing)
}

// ServeWS handles GET /ws?token=<jwt>. The token is validated exactly like
// the HTTP bearer gate before any presence mutation occurs.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	userID, err := h.auth.SessionUserID(ctx, tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Resolve the user's profile; a revoked identity refuses the channel.
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		h.logger.Error("ws user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := presence.NewSession(user.ID, user.Username, conn, h.logger)
	h.reg.Register(sess)
	h.publishPresence(user.ID, user.Username, true)

	// Blocks until the connection closes.
	h.readPump(sess)
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *presence.Session) {
	defer func() {
		h.handleDisconnect(s)
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up the session after the connection closes.
// Unregister is keyed on the session itself, so a late disconnect from a
// displaced connection cannot evict its replacement.
func (h *Handler) handleDisconnect(s *presence.Session) {
	s.Close()
	if h.reg.Unregister(s) {
		h.publishPresence(s.UserID, s.Username, false)
	}
	h.logger.Info("user disconnected", zap.Int64("user_id", s.UserID))
}

func (h *Handler) publishPresence(userID int64, username string, online bool) {
	payload, err := json.Marshal(presence.Event{
		UserID:   userID,
		Username: username,
		Online:   online,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.pubsub.Publish(ctx, presence.PubSubChannel, string(payload)); err != nil {
		h.logger.Warn("presence publish failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

func (h *Handler) handlePing(_ context.Context, s *presence.Session, payload json.RawMessage) error {
	var req struct {
		ClientTS int64 `json:"client_ts"`
	}
	// Payload is optional; a bare ping still gets a pong.
	_ = json.Unmarshal(payload, &req)
	s.SendHeartbeatPong(req.ClientTS)
	return nil
}
