package negotiations

import (
	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
)

// CreateNegotiationInput holds the validated payload for a buyer offer.
type CreateNegotiationInput struct {
	ProductID         uuid.UUID
	OfferedPriceCents int
	Quantity          int // zero means one unit
}

// ListParams selects which side of the caller's negotiations to return.
type ListParams struct {
	UserID uuid.UUID
	Side   Side
	Limit  int
	Cursor string
}

// Side filters the negotiation list by the caller's role in it.
type Side string

const (
	SideAll    Side = ""
	SideBuyer  Side = "buyer"
	SideSeller Side = "seller"
)

// ListResult is one negotiations page plus the cursor for the next.
type ListResult struct {
	Items  []models.Negotiation `json:"items"`
	Cursor string               `json:"cursor"`
}
