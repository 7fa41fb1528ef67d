package chat

import (
	"context"
	"strings"

	"github.com/chatlinkhq/chatlink/server/apperr"
	"github.com/chatlinkhq/chatlink/server/model"
	"github.com/chatlinkhq/chatlink/server/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMaxMessageLen = 2000

// Notifier pushes a realtime event to a user's live channel, if any.
type Notifier interface {
	Notify(userID int64, event string, payload interface{})
}

// Service persists direct messages and pushes best-effort realtime
// notifications. Persistence is the only success criterion; a failed or
// dropped push is never surfaced to the sender.
type Service struct {
	db            *gorm.DB
	notifier      Notifier
	maxMessageLen int
	logger        *zap.Logger
}

// NewService creates a messaging Service. maxMessageLen <= 0 selects the
// default limit.
func NewService(db *gorm.DB, notifier Notifier, maxMessageLen int, logger *zap.Logger) *Service {
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &Service{db: db, notifier: notifier, maxMessageLen: maxMessageLen, logger: logger}
}

// Send persists a message and notifies the receiver if they are online.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("message content is required")
	}
	if len([]rune(content)) > s.maxMessageLen {
		return nil, apperr.Validation("message too long")
	}

	msg := &model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, apperr.Internal("failed to store message", err)
	}

	s.notifier.Notify(receiverID, notify.EventMessageReceived, map[string]interface{}{
		"sender_id":  senderID,
		"content":    msg.Content,
		"created_at": msg.CreatedAt,
	})
	return msg, nil
}

// History returns all messages between the unordered pair (userA, userB),
// ascending by creation time. The result is identical regardless of argument
// order.
func (s *Service) History(ctx context.Context, userA, userB int64) ([]model.Message, error) {
	msgs := make([]model.Message, 0)
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.Internal("failed to load messages", err)
	}
	return msgs, nil
}
