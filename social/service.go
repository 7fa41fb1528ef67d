package social

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chatlinkhq/chatlink/server/apperr"
	"github.com/chatlinkhq/chatlink/server/model"
	"github.com/chatlinkhq/chatlink/server/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier pushes a realtime event to a user's live channel, if any.
type Notifier interface {
	Notify(userID int64, event string, payload interface{})
}

// Presence answers whether a user currently has a live channel.
type Presence interface {
	IsOnline(userID int64) bool
}

// Service is the friendship engine. It owns all mutations of the friendship
// edge table and keeps the two directions of an accepted friendship
// consistent.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	presence Presence
	logger   *zap.Logger
}

// NewService creates a friendship Service.
func NewService(db *gorm.DB, notifier Notifier, presence Presence, logger *zap.Logger) *Service {
	return &Service{db: db, notifier: notifier, presence: presence, logger: logger}
}

// PendingRequest is one incoming friend request joined with the requester's
// profile.
type PendingRequest struct {
	RequestID int64            `json:"request_id"`
	From      model.PublicUser `json:"from"`
	CreatedAt time.Time        `json:"created_at"`
}

// FriendInfo is one accepted friend with a presence annotation.
type FriendInfo struct {
	model.PublicUser
	Online bool `json:"online"`
}

// SearchResult is one user search hit annotated with the relationship status
// toward the searching user: "accepted", "pending", or "not friends".
type SearchResult struct {
	model.PublicUser
	FriendshipStatus string `json:"friendship_status"`
}

const statusNotFriends = "not friends"

// Request creates a pending edge (requester → target) and notifies the
// target if they are online.
func (s *Service) Request(ctx context.Context, requesterID, targetID int64) (*model.Friendship, error) {
	if targetID == requesterID {
		return nil, apperr.Validation("cannot send a friend request to yourself")
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id = ? AND friend_id = ? AND status = ?", requesterID, targetID, model.StatusPending).
		Count(&count).Error
	if err != nil {
		return nil, apperr.Internal("failed to check existing request", err)
	}
	if count > 0 {
		return nil, apperr.Conflict("friend request already sent")
	}

	// The requester's identity could have been revoked after token issuance.
	var requester model.User
	if err := s.db.WithContext(ctx).First(&requester, requesterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load requester", err)
	}

	edge := &model.Friendship{
		UserID:   requesterID,
		FriendID: targetID,
		Status:   model.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(edge).Error; err != nil {
		if isUniqueViolation(err) {
			// An edge for this ordered pair already exists (e.g. already
			// accepted friends).
			return nil, apperr.Conflict("friend request already sent")
		}
		return nil, apperr.Internal("failed to create friend request", err)
	}

	s.notifier.Notify(targetID, notify.EventFriendRequestReceived, map[string]interface{}{
		"from_user_id":  requesterID,
		"from_username": requester.Username,
	})
	return edge, nil
}

// Accept marks the request's edge accepted and ensures the mirror edge
// exists, so the friendship is visible from both sides. Only the request's
// addressee may accept. Re-accepting an already-accepted request is a no-op
// success that still re-ensures both directions.
func (s *Service) Accept(ctx context.Context, accepterID, requestID int64) error {
	var edge model.Friendship
	if err := s.db.WithContext(ctx).First(&edge, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("friend request not found")
		}
		return apperr.Internal("failed to load friend request", err)
	}

	if edge.FriendID != accepterID {
		return apperr.Forbidden("not authorized to accept this request")
	}

	if edge.Status != model.StatusAccepted {
		err := s.db.WithContext(ctx).Model(&model.Friendship{}).
			Where("id = ?", edge.ID).
			Update("status", model.StatusAccepted).Error
		if err != nil {
			return apperr.Internal("failed to accept friend request", err)
		}
	}

	// The mirror edge is created in its own unit so a retried accept after a
	// partial failure converges on both directions accepted.
	if err := s.ensureAcceptedEdge(ctx, accepterID, edge.UserID); err != nil {
		return err
	}

	s.notifier.Notify(edge.UserID, notify.EventFriendRequestAccepted, map[string]interface{}{
		"user_id":   accepterID,
		"friend_id": edge.UserID,
	})
	return nil
}

// ensureAcceptedEdge guarantees an accepted edge (ownerID → targetID),
// creating or upgrading as needed. A uniqueness violation on create means a
// concurrent accept won the race, which is success.
func (s *Service) ensureAcceptedEdge(ctx context.Context, ownerID, targetID int64) error {
	var existing model.Friendship
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ?", ownerID, targetID).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == model.StatusAccepted {
			return nil
		}
		// A crossed request in the other direction was pending; accepting
		// either side completes both.
		err := s.db.WithContext(ctx).Model(&model.Friendship{}).
			Where("id = ?", existing.ID).
			Update("status", model.StatusAccepted).Error
		if err != nil {
			return apperr.Internal("failed to upgrade mirror edge", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		create := s.db.WithContext(ctx).Create(&model.Friendship{
			UserID:   ownerID,
			FriendID: targetID,
			Status:   model.StatusAccepted,
		}).Error
		if create != nil && !isUniqueViolation(create) {
			return apperr.Internal("failed to create mirror edge", create)
		}
		return nil
	default:
		return apperr.Internal("failed to check mirror edge", err)
	}
}

// ListPending returns all pending requests addressed to userID, joined with
// each requester's profile.
func (s *Service) ListPending(ctx context.Context, userID int64) ([]PendingRequest, error) {
	var edges []model.Friendship
	err := s.db.WithContext(ctx).
		Where("friend_id = ? AND status = ?", userID, model.StatusPending).
		Order("created_at ASC").
		Find(&edges).Error
	if err != nil {
		return nil, apperr.Internal("failed to list friend requests", err)
	}

	users, err := s.loadProfiles(ctx, edgeOwnerIDs(edges))
	if err != nil {
		return nil, err
	}

	out := make([]PendingRequest, 0, len(edges))
	for _, e := range edges {
		u, ok := users[e.UserID]
		if !ok {
			continue
		}
		out = append(out, PendingRequest{
			RequestID: e.ID,
			From:      u,
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}

// ListFriends returns userID's accepted friends with presence annotations.
// Because an accepted friendship is always mirrored, a single directed scan
// over owned edges is sufficient.
func (s *Service) ListFriends(ctx context.Context, userID int64) ([]FriendInfo, error) {
	var edges []model.Friendship
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.StatusAccepted).
		Find(&edges).Error
	if err != nil {
		return nil, apperr.Internal("failed to list friends", err)
	}

	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FriendID)
	}
	users, err := s.loadProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]FriendInfo, 0, len(edges))
	for _, e := range edges {
		u, ok := users[e.FriendID]
		if !ok {
			continue
		}
		out = append(out, FriendInfo{
			PublicUser: u,
			Online:     s.presence.IsOnline(e.FriendID),
		})
	}
	return out, nil
}

// Search finds users by case-insensitive username substring, excluding the
// requester, each annotated with the relationship status toward the
// requester.
func (s *Service) Search(ctx context.Context, requesterID int64, text string) ([]SearchResult, error) {
	pattern := "%" + strings.ToLower(text) + "%"
	var users []model.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) LIKE ? AND id <> ?", pattern, requesterID).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Internal("failed to search users", err)
	}

	var edges []model.Friendship
	err = s.db.WithContext(ctx).
		Where("user_id = ? OR friend_id = ?", requesterID, requesterID).
		Find(&edges).Error
	if err != nil {
		return nil, apperr.Internal("failed to load relationships", err)
	}

	// Relationship status per counterpart, checked in both edge directions.
	statusByUser := make(map[int64]model.FriendStatus, len(edges))
	for _, e := range edges {
		counterpart := e.UserID
		if counterpart == requesterID {
			counterpart = e.FriendID
		}
		if cur, ok := statusByUser[counterpart]; !ok || e.Status > cur {
			statusByUser[counterpart] = e.Status
		}
	}

	out := make([]SearchResult, 0, len(users))
	for i := range users {
		status := statusNotFriends
		if st, ok := statusByUser[users[i].ID]; ok {
			status = st.String()
		}
		out = append(out, SearchResult{
			PublicUser:       users[i].Public(),
			FriendshipStatus: status,
		})
	}
	return out, nil
}

// loadProfiles fetches public profiles for the given user IDs.
func (s *Service) loadProfiles(ctx context.Context, ids []int64) (map[int64]model.PublicUser, error) {
	out := make(map[int64]model.PublicUser, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apperr.Internal("failed to load user profiles", err)
	}
	for i := range users {
		out[users[i].ID] = users[i].Public()
	}
	return out, nil
}

func edgeOwnerIDs(edges []model.Friendship) []int64 {
	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.UserID)
	}
	return ids
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
