package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party thread between a buyer and a seller, opened
// lazily on first message and unique per pair.
type Conversation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:idx_conversations_pair" json:"buyerId"`
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:idx_conversations_pair" json:"sellerId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// HasMember reports whether the given user is a party to the thread.
func (c Conversation) HasMember(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// CounterpartOf returns the other party for the given member.
func (c Conversation) CounterpartOf(userID uuid.UUID) uuid.UUID {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}
