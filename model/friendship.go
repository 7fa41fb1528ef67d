package model

import "time"

// FriendStatus is the state of one directed friendship edge.
type FriendStatus int

const (
	StatusPending  FriendStatus = 0
	StatusAccepted FriendStatus = 1
)

// String returns the wire label for the status.
func (s FriendStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// Friendship is one directed friendship edge. An accepted friendship is two
// edges, one per direction, so each side's friend list is a single directed
// scan instead of an OR-query over both columns.
type Friendship struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64        `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"user_id"`
	FriendID  int64        `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"friend_id"`
	Status    FriendStatus `gorm:"default:0" json:"status"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}
