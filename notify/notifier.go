package notify

import (
	"encoding/json"

	"github.com/chatlinkhq/chatlink/server/presence"
	"go.uber.org/zap"
)

// Event names pushed to connected clients.
const (
	EventFriendRequestReceived = "friendRequestReceived"
	EventFriendRequestAccepted = "friendRequestAccepted"
	EventMessageReceived       = "messageReceived"
)

// Notifier pushes realtime events to connected users. Delivery is
// at-most-once and best-effort: a recipient without a live session is a
// silent drop, never an error. Durable state lives in the database; this is
// only the convenience layer on top of it.
type Notifier struct {
	reg    *presence.Registry
	logger *zap.Logger
}

// New creates a Notifier over the given presence registry.
func New(reg *presence.Registry, logger *zap.Logger) *Notifier {
	return &Notifier{reg: reg, logger: logger}
}

// Notify sends (event, payload) to userID's live channel, if any.
func (n *Notifier) Notify(userID int64, event string, payload interface{}) {
	s := n.reg.Get(userID)
	if s == nil {
		n.logger.Debug("notify dropped, user offline",
			zap.Int64("user_id", userID),
			zap.String("event", event))
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("notify payload marshal failed",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	s.Send(&presence.Packet{Type: event, Payload: data})
}
