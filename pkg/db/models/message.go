package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single entry in a conversation, ordered by created_at.
type Message struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID  `gorm:"column:conversation_id;type:uuid;not null;index" json:"conversationId"`
	SenderID       uuid.UUID  `gorm:"column:sender_id;type:uuid;not null" json:"senderId"`
	RecipientID    uuid.UUID  `gorm:"column:recipient_id;type:uuid;not null" json:"recipientId"`
	Body           string     `gorm:"column:body;type:text;not null" json:"body"`
	ReadAt         *time.Time `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
