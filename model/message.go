package model

import "time"

// Message is one direct message. Rows are append-only; conversation history
// is ordered by created_at ascending.
type Message struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   int64     `gorm:"index:idx_message_sender;not null" json:"sender_id"`
	ReceiverID int64     `gorm:"index:idx_message_receiver;not null" json:"receiver_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
