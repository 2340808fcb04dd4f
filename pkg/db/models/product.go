package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/enums"
)

// Product represents a seller listing. Stock is only ever mutated by order
// creation; archiving is the soft delete.
type Product struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SellerID    uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index" json:"sellerId"`
	Title       string                `gorm:"column:title;not null" json:"title"`
	Description string                `gorm:"column:description" json:"description"`
	PriceCents  int                   `gorm:"column:price_cents;not null" json:"priceCents"`
	Category    enums.ProductCategory `gorm:"column:category;type:text;not null" json:"category"`
	ImageURL    *string               `gorm:"column:image_url" json:"imageUrl,omitempty"`
	Stock       int                   `gorm:"column:stock;not null;default:0" json:"stock"`
	Status      enums.ProductStatus   `gorm:"column:status;type:text;not null;default:'ACTIVE'" json:"status"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
