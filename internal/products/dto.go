package products

import (
	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
)

// CreateProductInput holds the validated payload to create a listing.
type CreateProductInput struct {
	Title       string
	Description string
	PriceCents  int
	Category    enums.ProductCategory
	ImageURL    *string
	Stock       int
}

// UpdateProductInput holds optional mutation values for a listing. Stock is
// deliberately absent: only order creation moves stock.
type UpdateProductInput struct {
	Title       *string
	Description *string
	PriceCents  *int
	Category    *enums.ProductCategory
	ImageURL    *string
}

// SearchParams filters the public catalog.
type SearchParams struct {
	Category      *enums.ProductCategory
	Query         string
	MinPriceCents *int
	MaxPriceCents *int
	SellerID      *uuid.UUID
	Limit         int
	Cursor        string
}

// ProductListResult is one catalog page plus the cursor for the next.
type ProductListResult struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor"`
}
