package orders

import (
	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
)

// CreateOrderInput is the validated payload to place an order. Exactly one of
// NegotiationID and ProductID drives the path: negotiated orders lock price
// and quantity from the accepted offer, direct orders take the live price.
type CreateOrderInput struct {
	NegotiationID   *uuid.UUID
	ProductID       *uuid.UUID
	Quantity        int
	ShippingAddress string
}

// ProductSummary carries the display fields joined onto order listings.
type ProductSummary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	PriceCents int       `json:"priceCents"`
	ImageURL   *string   `json:"imageUrl,omitempty"`
}

// UserSummary is the counterpart shown next to an order.
type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
}

// OrderView is an order tagged with the caller's side plus joined display data.
type OrderView struct {
	Order       models.Order    `json:"order"`
	Role        string          `json:"role"`
	Product     *ProductSummary `json:"product,omitempty"`
	Counterpart *UserSummary    `json:"counterpart,omitempty"`
}

// ListParams configures an order listing page.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ListResult is one order page plus the cursor for the next.
type ListResult struct {
	Items  []OrderView `json:"items"`
	Cursor string      `json:"cursor"`
}

const (
	roleBuyer  = "buyer"
	roleSeller = "seller"
)

func productSummaryFrom(product models.Product) *ProductSummary {
	return &ProductSummary{
		ID:         product.ID,
		Title:      product.Title,
		PriceCents: product.PriceCents,
		ImageURL:   product.ImageURL,
	}
}

func userSummaryFrom(user models.User) *UserSummary {
	return &UserSummary{
		ID:        user.ID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}
}
