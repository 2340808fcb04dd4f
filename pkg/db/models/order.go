package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/enums"
)

// Order is a placed purchase. TotalCents is always computed server-side as
// unit price times quantity; NegotiationID back-references the accepted offer
// on the negotiated path.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID         uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyerId"`
	ProductID       uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index" json:"productId"`
	NegotiationID   *uuid.UUID        `gorm:"column:negotiation_id;type:uuid" json:"negotiationId,omitempty"`
	UnitPriceCents  int               `gorm:"column:unit_price_cents;not null" json:"unitPriceCents"`
	Quantity        int               `gorm:"column:quantity;not null" json:"quantity"`
	TotalCents      int               `gorm:"column:total_cents;not null" json:"totalCents"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	ShippingAddress string            `gorm:"column:shipping_address;not null" json:"shippingAddress"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
