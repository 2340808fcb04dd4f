package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/enums"
)

// Negotiation is a buyer's price/quantity offer against a product. SellerID is
// denormalized from the product at creation time; price and quantity never
// change after creation.
type Negotiation struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index" json:"productId"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyerId"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index" json:"sellerId"`
	OfferedPriceCents int                     `gorm:"column:offered_price_cents;not null" json:"offeredPriceCents"`
	Quantity          int                     `gorm:"column:quantity;not null;default:1" json:"quantity"`
	Status            enums.NegotiationStatus `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
