package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is a 1-5 star rating with a comment, one per author per product.
type Review struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_reviews_product_author" json:"productId"`
	AuthorID  uuid.UUID `gorm:"column:author_id;type:uuid;not null;uniqueIndex:idx_reviews_product_author" json:"authorId"`
	Rating    int       `gorm:"column:rating;not null" json:"rating"`
	Comment   string    `gorm:"column:comment" json:"comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
